package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a room is not found.
var ErrNotFound = errors.New("room not found")

// Repository provides access to room, join and message storage.
type Repository interface {
	CreateRoom(ctx context.Context, room *ChatRoom) error
	ListRooms(ctx context.Context) ([]RoomRecord, error)
	FindRoom(ctx context.Context, id int64) (*RoomRecord, error)
	// AddJoin is idempotent per (room, user).
	AddJoin(ctx context.Context, roomID, userID int64) error
	// RemoveJoin returns the participant count left in the room.
	RemoveJoin(ctx context.Context, roomID, userID int64) (int, error)
	AppendMessage(ctx context.Context, msg *ChatMessage) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, roomID int64, limit int) ([]ChatMessage, error)
	Ping(ctx context.Context) error
	Close() error
}

// GormRepository implements Repository with GORM.
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

// NewGormRepository creates a new GORM backed repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the schema.
func (r *GormRepository) Migrate() error {
	if err := r.db.AutoMigrate(&ChatRoom{}, &ChatRoomJoin{}, &ChatMessage{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateRoom saves a new room and fills in its ID.
func (r *GormRepository) CreateRoom(ctx context.Context, room *ChatRoom) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

type roomCount struct {
	RoomID       int64
	Participants int
}

// ListRooms returns every room, newest first, with participant counts.
func (r *GormRepository) ListRooms(ctx context.Context) ([]RoomRecord, error) {
	var rooms []ChatRoom
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	var counts []roomCount
	if err := r.db.WithContext(ctx).
		Model(&ChatRoomJoin{}).
		Select("room_id, COUNT(*) AS participants").
		Group("room_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	byRoom := lo.Associate(counts, func(c roomCount) (int64, int) {
		return c.RoomID, c.Participants
	})

	return lo.Map(rooms, func(room ChatRoom, _ int) RoomRecord {
		return RoomRecord{ChatRoom: room, Participants: byRoom[room.ID]}
	}), nil
}

// FindRoom retrieves a room by its ID.
func (r *GormRepository) FindRoom(ctx context.Context, id int64) (*RoomRecord, error) {
	var room ChatRoom
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}

	count, err := r.countJoins(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return &RoomRecord{ChatRoom: room, Participants: count}, nil
}

// AddJoin records that userID joined roomID.
func (r *GormRepository) AddJoin(ctx context.Context, roomID, userID int64) error {
	join := &ChatRoomJoin{RoomID: roomID, UserID: userID, JoinedAt: time.Now()}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(join).Error; err != nil {
		return fmt.Errorf("failed to record join: %w", err)
	}
	return nil
}

// RemoveJoin deletes the join record of userID in roomID.
func (r *GormRepository) RemoveJoin(ctx context.Context, roomID, userID int64) (int, error) {
	var remaining int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChatRoomJoin{}, "room_id = ? AND user_id = ?", roomID, userID).Error; err != nil {
			return fmt.Errorf("failed to remove join: %w", err)
		}
		count, err := r.countJoins(tx, roomID)
		if err != nil {
			return err
		}
		remaining = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// AppendMessage saves a chat message.
func (r *GormRepository) AppendMessage(ctx context.Context, msg *ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// RecentMessages returns the latest messages of roomID, oldest first.
func (r *GormRepository) RecentMessages(ctx context.Context, roomID int64, limit int) ([]ChatMessage, error) {
	var msgs []ChatMessage
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Ping checks the database connection.
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func (r *GormRepository) countJoins(db *gorm.DB, roomID int64) (int, error) {
	var count int64
	if err := db.Model(&ChatRoomJoin{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return int(count), nil
}
