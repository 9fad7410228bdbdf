package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/registry"
)

const (
	maxTitleLength      = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RoomView is a persisted room together with its live connection count.
type RoomView struct {
	chat.Room
	LiveConnections int `json:"liveConnections"`
}

// RoomService implements the room operations exposed over REST.
type RoomService struct {
	store    RoomStore
	history  HistoryStore
	registry *registry.Registry
}

// NewRoomService creates a RoomService.
func NewRoomService(store RoomStore, history HistoryStore, reg *registry.Registry) *RoomService {
	return &RoomService{
		store:    store,
		history:  history,
		registry: reg,
	}
}

// ValidateTitle checks a room title.
func ValidateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("title too long: max %d characters", maxTitleLength)
	}
	return nil
}

// OpenRoom creates a room owned by owner.
func (s *RoomService) OpenRoom(ctx context.Context, title string, owner chat.Identity) (RoomView, error) {
	title = strings.TrimSpace(title)
	if err := ValidateTitle(title); err != nil {
		return RoomView{}, err
	}

	id, err := s.store.CreateRoom(ctx, title, owner.UserID)
	if err != nil {
		return RoomView{}, err
	}
	return s.GetRoom(ctx, id)
}

// ListRooms returns every room with its live connection count.
func (s *RoomService) ListRooms(ctx context.Context) ([]RoomView, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, RoomView{
			Room:            room,
			LiveConnections: s.registry.Count(room.ID),
		})
	}
	return views, nil
}

// GetRoom returns one room, or chat.ErrRoomNotFound.
func (s *RoomService) GetRoom(ctx context.Context, roomID int64) (RoomView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return RoomView{}, err
	}
	return RoomView{
		Room:            *room,
		LiveConnections: s.registry.Count(room.ID),
	}, nil
}

// History returns the most recent chat messages of a room, oldest first.
// A non-positive limit selects the default; limits are capped.
func (s *RoomService) History(ctx context.Context, roomID int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.history.RecentMessages(ctx, roomID, limit)
}
