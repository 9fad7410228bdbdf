package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/samber/lo"
)

const maxRecentMessages = 500

// createRoom handles the storage.create-room service request.
func (m *Module) createRoom(ctx context.Context, req CreateRoomRequest, _ *mono.Msg) (CreateRoomResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return CreateRoomResponse{}, fmt.Errorf("title is required")
	}
	if req.OwnerID <= 0 {
		return CreateRoomResponse{}, fmt.Errorf("owner_id is required")
	}

	room := &ChatRoom{Title: title, OwnerID: req.OwnerID}
	if err := m.repo.CreateRoom(ctx, room); err != nil {
		return CreateRoomResponse{}, err
	}

	m.logger.Info("Room created", "roomID", room.ID, "ownerID", room.OwnerID)
	return CreateRoomResponse{RoomID: room.ID}, nil
}

// listRooms handles the storage.list-rooms service request.
func (m *Module) listRooms(ctx context.Context, _ ListRoomsRequest, _ *mono.Msg) (ListRoomsResponse, error) {
	records, err := m.repo.ListRooms(ctx)
	if err != nil {
		return ListRoomsResponse{}, err
	}
	return ListRoomsResponse{Rooms: lo.Map(records, func(rec RoomRecord, _ int) chat.Room {
		return toRoom(rec)
	})}, nil
}

// getRoom handles the storage.get-room service request. A missing room is
// reported with Found=false rather than an error.
func (m *Module) getRoom(ctx context.Context, req GetRoomRequest, _ *mono.Msg) (GetRoomResponse, error) {
	rec, err := m.repo.FindRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return GetRoomResponse{Found: false}, nil
		}
		return GetRoomResponse{}, err
	}
	return GetRoomResponse{Room: lo.ToPtr(toRoom(*rec)), Found: true}, nil
}

// recordJoin handles the storage.record-join service request.
func (m *Module) recordJoin(ctx context.Context, req MembershipRequest, _ *mono.Msg) (RecordJoinResponse, error) {
	if req.RoomID <= 0 || req.UserID <= 0 {
		return RecordJoinResponse{}, fmt.Errorf("room_id and user_id are required")
	}
	if err := m.repo.AddJoin(ctx, req.RoomID, req.UserID); err != nil {
		return RecordJoinResponse{}, err
	}
	return RecordJoinResponse{Success: true}, nil
}

// recordExit handles the storage.record-exit service request.
func (m *Module) recordExit(ctx context.Context, req MembershipRequest, _ *mono.Msg) (RecordExitResponse, error) {
	if req.RoomID <= 0 || req.UserID <= 0 {
		return RecordExitResponse{}, fmt.Errorf("room_id and user_id are required")
	}
	remaining, err := m.repo.RemoveJoin(ctx, req.RoomID, req.UserID)
	if err != nil {
		return RecordExitResponse{}, err
	}
	return RecordExitResponse{Participants: remaining}, nil
}

// appendMessage handles the storage.append-message service request.
func (m *Module) appendMessage(ctx context.Context, req AppendMessageRequest, _ *mono.Msg) (AppendMessageResponse, error) {
	if req.RoomID <= 0 || req.UserID <= 0 {
		return AppendMessageResponse{}, fmt.Errorf("room_id and user_id are required")
	}
	if !req.Kind.Persisted() {
		return AppendMessageResponse{}, fmt.Errorf("messages of kind %q are not persisted", req.Kind)
	}
	if req.Content == "" {
		return AppendMessageResponse{}, fmt.Errorf("content is required")
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	msg := &ChatMessage{
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Kind:      string(req.Kind),
		Content:   req.Content,
		CreatedAt: req.CreatedAt,
	}
	if err := m.repo.AppendMessage(ctx, msg); err != nil {
		return AppendMessageResponse{}, err
	}
	return AppendMessageResponse{MessageID: msg.ID}, nil
}

// recentMessages handles the storage.recent-messages service request.
func (m *Module) recentMessages(ctx context.Context, req RecentMessagesRequest, _ *mono.Msg) (RecentMessagesResponse, error) {
	if req.Limit <= 0 || req.Limit > maxRecentMessages {
		return RecentMessagesResponse{}, fmt.Errorf("limit must be between 1 and %d", maxRecentMessages)
	}
	msgs, err := m.repo.RecentMessages(ctx, req.RoomID, req.Limit)
	if err != nil {
		return RecentMessagesResponse{}, err
	}
	return RecentMessagesResponse{Messages: lo.Map(msgs, func(msg ChatMessage, _ int) MessageResponse {
		return toMessageResponse(msg)
	})}, nil
}
