package storage

import (
	"time"

	"github.com/example/roomchat/domain/chat"
)

// Service names registered by the storage module.
const (
	ServiceCreateRoom     = "create-room"
	ServiceListRooms      = "list-rooms"
	ServiceGetRoom        = "get-room"
	ServiceRecordJoin     = "record-join"
	ServiceRecordExit     = "record-exit"
	ServiceAppendMessage  = "append-message"
	ServiceRecentMessages = "recent-messages"
)

// CreateRoomRequest is the request for creating a room.
type CreateRoomRequest struct {
	Title   string `json:"title"`
	OwnerID int64  `json:"owner_id"`
}

// CreateRoomResponse is the response after creating a room.
type CreateRoomResponse struct {
	RoomID int64 `json:"room_id"`
}

// ListRoomsRequest is the request for listing rooms.
type ListRoomsRequest struct{}

// ListRoomsResponse is the response containing a list of rooms.
type ListRoomsResponse struct {
	Rooms []chat.Room `json:"rooms"`
}

// GetRoomRequest is the request for getting a room.
type GetRoomRequest struct {
	RoomID int64 `json:"room_id"`
}

// GetRoomResponse is the response for a room lookup.
type GetRoomResponse struct {
	Room  *chat.Room `json:"room,omitempty"`
	Found bool       `json:"found"`
}

// MembershipRequest identifies a user in a room.
type MembershipRequest struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

// RecordJoinResponse is the response after recording a join.
type RecordJoinResponse struct {
	Success bool `json:"success"`
}

// RecordExitResponse is the response after recording an exit.
type RecordExitResponse struct {
	Participants int `json:"participants"`
}

// AppendMessageRequest is the request for persisting a chat message.
type AppendMessageRequest struct {
	RoomID    int64     `json:"room_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Kind      chat.Kind `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendMessageResponse is the response after persisting a message.
type AppendMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

// RecentMessagesRequest is the request for a room's recent history.
type RecentMessagesRequest struct {
	RoomID int64 `json:"room_id"`
	Limit  int   `json:"limit"`
}

// MessageResponse represents a persisted message in responses.
type MessageResponse struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Kind      chat.Kind `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentMessagesResponse is the response containing a room's history.
type RecentMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func toRoom(rec RoomRecord) chat.Room {
	return chat.Room{
		ID:               rec.ID,
		Title:            rec.Title,
		OwnerID:          rec.OwnerID,
		CreatedAt:        rec.CreatedAt,
		ParticipantCount: rec.Participants,
	}
}

func toMessageResponse(m ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Kind:      chat.Kind(m.Kind),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
