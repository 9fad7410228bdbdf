package api

import (
	"github.com/example/roomchat/domain/chat"
	chatmod "github.com/example/roomchat/modules/chat"
)

// CreateRoomRequest is the API request to open a room.
type CreateRoomRequest struct {
	Title string `json:"title"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []chatmod.RoomView `json:"rooms"`
	Total int                `json:"total"`
}

// HistoryResponse is the API response for a room's recent messages.
type HistoryResponse struct {
	RoomNo   int64        `json:"roomNo"`
	Messages []chat.Frame `json:"messages"`
}

// NoticeRequest is the API request to publish a site-wide notice.
type NoticeRequest struct {
	Message string `json:"message"`
}

// TokenRequest is the API request to issue a session token.
type TokenRequest struct {
	UserNo   int64  `json:"userNo" validate:"required,gt=0"`
	UserName string `json:"userName" validate:"required,max=50"`
	Admin    bool   `json:"admin"`
}

// TokenResponse is the API response carrying a session token.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
