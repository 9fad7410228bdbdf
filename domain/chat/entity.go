package chat

import "time"

// Kind tags a message as user content or a server-synthesized event.
type Kind string

const (
	KindChat   Kind = "CHAT"
	KindEnter  Kind = "ENTER"
	KindExit   Kind = "EXIT"
	KindNotice Kind = "NOTICE"
)

// Persisted reports whether messages of this kind are written to history.
// Presence events and notices are delivered live only.
func (k Kind) Persisted() bool {
	return k == KindChat
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindEnter, KindExit, KindNotice:
		return true
	}
	return false
}

// Identity is a resolved user as seen by the chat subsystem.
type Identity struct {
	UserID      int64  `json:"userNo"`
	DisplayName string `json:"userName"`
	Admin       bool   `json:"admin,omitempty"`
}

// Room represents a persisted chat room.
type Room struct {
	ID               int64     `json:"roomNo"`
	Title            string    `json:"title"`
	OwnerID          int64     `json:"ownerNo"`
	CreatedAt        time.Time `json:"createdAt"`
	ParticipantCount int       `json:"participantCount"`
}

// Message is a single chat or presence message addressed to a room.
// RoomID is zero for site-wide notices.
type Message struct {
	RoomID    int64
	Sender    Identity
	Kind      Kind
	Text      string
	CreatedAt time.Time
}

// JoinRecord ties a user to a room for participant counting.
type JoinRecord struct {
	RoomID   int64
	UserID   int64
	JoinedAt time.Time
}

// EnterMessage synthesizes the ENTER announcement for who joining roomID.
func EnterMessage(roomID int64, who Identity, at time.Time) Message {
	return Message{
		RoomID:    roomID,
		Sender:    who,
		Kind:      KindEnter,
		Text:      who.DisplayName + " joined the room.",
		CreatedAt: at,
	}
}

// ExitMessage synthesizes the EXIT announcement for who leaving roomID.
func ExitMessage(roomID int64, who Identity, at time.Time) Message {
	return Message{
		RoomID:    roomID,
		Sender:    who,
		Kind:      KindExit,
		Text:      who.DisplayName + " left the room.",
		CreatedAt: at,
	}
}

// NoticeMessage builds a site-wide notice sent by who.
func NoticeMessage(who Identity, text string, at time.Time) Message {
	return Message{
		Sender:    who,
		Kind:      KindNotice,
		Text:      text,
		CreatedAt: at,
	}
}
