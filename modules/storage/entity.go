package storage

import "time"

// ChatRoom is the persisted room record.
type ChatRoom struct {
	ID        int64     `gorm:"primaryKey"`
	Title     string    `gorm:"size:100;not null"`
	OwnerID   int64     `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// ChatRoomJoin records that a user has joined a room. At most one record
// exists per (room, user).
type ChatRoomJoin struct {
	RoomID   int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID   int64     `gorm:"primaryKey;autoIncrement:false"`
	JoinedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (ChatRoomJoin) TableName() string {
	return "chat_room_joins"
}

// ChatMessage is one persisted chat line.
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey"`
	RoomID    int64     `gorm:"not null;index:idx_messages_room,priority:1"`
	UserID    int64     `gorm:"not null"`
	UserName  string    `gorm:"size:50;not null"`
	Kind      string    `gorm:"size:10;not null"`
	Content   string    `gorm:"size:5000;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_room,priority:2"`
}

// TableName returns the table name for GORM.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// RoomRecord is a room together with its persisted participant count.
type RoomRecord struct {
	ChatRoom
	Participants int
}
