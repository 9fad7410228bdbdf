package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS chat_rooms (
	id         BIGSERIAL PRIMARY KEY,
	title      VARCHAR(100) NOT NULL,
	owner_id   BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chat_rooms_owner_id ON chat_rooms (owner_id);

CREATE TABLE IF NOT EXISTS chat_room_joins (
	room_id   BIGINT NOT NULL REFERENCES chat_rooms (id),
	user_id   BIGINT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	room_id    BIGINT NOT NULL REFERENCES chat_rooms (id),
	user_id    BIGINT NOT NULL,
	user_name  VARCHAR(50) NOT NULL,
	kind       VARCHAR(10) NOT NULL,
	content    VARCHAR(5000) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON chat_messages (room_id, created_at);
`

// PgRepository implements Repository on a pgx connection pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PgRepository)(nil)

// NewPgRepository creates a repository over pool.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (r *PgRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateRoom saves a new room and fills in its ID and creation time.
func (r *PgRepository) CreateRoom(ctx context.Context, room *ChatRoom) error {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO chat_rooms (title, owner_id) VALUES ($1, $2) RETURNING id, created_at`,
		room.Title, room.OwnerID)
	if err := row.Scan(&room.ID, &room.CreatedAt); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// ListRooms returns every room, newest first, with participant counts.
func (r *PgRepository) ListRooms(ctx context.Context) ([]RoomRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.title, r.owner_id, r.created_at, COUNT(j.user_id)
		FROM chat_rooms r
		LEFT JOIN chat_room_joins j ON j.room_id = r.id
		GROUP BY r.id
		ORDER BY r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var out []RoomRecord
	for rows.Next() {
		var rec RoomRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.OwnerID, &rec.CreatedAt, &rec.Participants); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return out, nil
}

// FindRoom retrieves a room by its ID.
func (r *PgRepository) FindRoom(ctx context.Context, id int64) (*RoomRecord, error) {
	var rec RoomRecord
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.title, r.owner_id, r.created_at,
			(SELECT COUNT(*) FROM chat_room_joins j WHERE j.room_id = r.id)
		FROM chat_rooms r
		WHERE r.id = $1`, id).
		Scan(&rec.ID, &rec.Title, &rec.OwnerID, &rec.CreatedAt, &rec.Participants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &rec, nil
}

// AddJoin records that userID joined roomID.
func (r *PgRepository) AddJoin(ctx context.Context, roomID, userID int64) error {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO chat_room_joins (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID); err != nil {
		return fmt.Errorf("failed to record join: %w", err)
	}
	return nil
}

// RemoveJoin deletes the join record of userID in roomID.
func (r *PgRepository) RemoveJoin(ctx context.Context, roomID, userID int64) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM chat_room_joins WHERE room_id = $1 AND user_id = $2`,
		roomID, userID); err != nil {
		return 0, fmt.Errorf("failed to remove join: %w", err)
	}

	var remaining int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_room_joins WHERE room_id = $1`, roomID).
		Scan(&remaining); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return remaining, nil
}

// AppendMessage saves a chat message and fills in its ID.
func (r *PgRepository) AppendMessage(ctx context.Context, msg *ChatMessage) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (room_id, user_id, user_name, kind, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		msg.RoomID, msg.UserID, msg.UserName, msg.Kind, msg.Content, msg.CreatedAt)
	if err := row.Scan(&msg.ID); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// RecentMessages returns the latest messages of roomID, oldest first.
func (r *PgRepository) RecentMessages(ctx context.Context, roomID int64, limit int) ([]ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_id, user_id, user_name, kind, content, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY id DESC
		LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.UserName, &m.Kind, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Ping checks the database connection.
func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool.
func (r *PgRepository) Close() error {
	r.pool.Close()
	return nil
}
