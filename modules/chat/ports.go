//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=../../mocks/chat_ports_mock.go -package=mocks
package chat

import (
	"context"

	"github.com/example/roomchat/domain/chat"
)

// RoomStore is the room-persistence collaborator.
type RoomStore interface {
	CreateRoom(ctx context.Context, title string, ownerID int64) (int64, error)
	ListRooms(ctx context.Context) ([]chat.Room, error)
	// GetRoom returns chat.ErrRoomNotFound when roomID has no record.
	GetRoom(ctx context.Context, roomID int64) (*chat.Room, error)
	RecordJoin(ctx context.Context, roomID, userID int64) error
	// RecordExit removes the join record and returns the participant count
	// remaining in the room.
	RecordExit(ctx context.Context, roomID, userID int64) (int, error)
}

// MessageStore is the message-persistence collaborator.
type MessageStore interface {
	Append(ctx context.Context, msg chat.Message) error
}

// Notifier delivers a message to everyone listening on its room.
type Notifier interface {
	NotifyRoom(ctx context.Context, msg chat.Message) error
}

// HistoryStore reads back persisted chat content.
type HistoryStore interface {
	// RecentMessages returns up to limit messages of roomID, oldest first.
	RecentMessages(ctx context.Context, roomID int64, limit int) ([]chat.Message, error)
}
