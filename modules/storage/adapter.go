package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/roomchat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/samber/lo"
)

// Adapter wraps the storage ServiceContainer for the chat module. Every
// transport or service failure is reported as chat.ErrPersistence.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new adapter for storage services.
// container is the ServiceContainer received via SetDependencyServiceContainer.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("storage adapter requires non-nil ServiceContainer")
	}
	return &Adapter{container: container}
}

func serviceError(service string, err error) error {
	return fmt.Errorf("%w: %s service call failed: %v", chat.ErrPersistence, service, err)
}

// CreateRoom creates a room via the create-room service.
func (a *Adapter) CreateRoom(ctx context.Context, title string, ownerID int64) (int64, error) {
	req := CreateRoomRequest{Title: title, OwnerID: ownerID}
	var resp CreateRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceCreateRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return 0, serviceError(ServiceCreateRoom, err)
	}
	return resp.RoomID, nil
}

// ListRooms lists rooms via the list-rooms service.
func (a *Adapter) ListRooms(ctx context.Context) ([]chat.Room, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, serviceError(ServiceListRooms, err)
	}
	return resp.Rooms, nil
}

// GetRoom retrieves a room via the get-room service.
func (a *Adapter) GetRoom(ctx context.Context, roomID int64) (*chat.Room, error) {
	req := GetRoomRequest{RoomID: roomID}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, serviceError(ServiceGetRoom, err)
	}
	if !resp.Found || resp.Room == nil {
		return nil, fmt.Errorf("%w: %d", chat.ErrRoomNotFound, roomID)
	}
	return resp.Room, nil
}

// RecordJoin records a join via the record-join service.
func (a *Adapter) RecordJoin(ctx context.Context, roomID, userID int64) error {
	req := MembershipRequest{RoomID: roomID, UserID: userID}
	var resp RecordJoinResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecordJoin,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return serviceError(ServiceRecordJoin, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: join not recorded", chat.ErrPersistence)
	}
	return nil
}

// RecordExit removes a join via the record-exit service.
func (a *Adapter) RecordExit(ctx context.Context, roomID, userID int64) (int, error) {
	req := MembershipRequest{RoomID: roomID, UserID: userID}
	var resp RecordExitResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecordExit,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return 0, serviceError(ServiceRecordExit, err)
	}
	return resp.Participants, nil
}

// Append persists a chat message via the append-message service.
func (a *Adapter) Append(ctx context.Context, msg chat.Message) error {
	req := AppendMessageRequest{
		RoomID:    msg.RoomID,
		UserID:    msg.Sender.UserID,
		UserName:  msg.Sender.DisplayName,
		Kind:      msg.Kind,
		Content:   msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	var resp AppendMessageResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceAppendMessage,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return serviceError(ServiceAppendMessage, err)
	}
	return nil
}

// RecentMessages loads history via the recent-messages service.
func (a *Adapter) RecentMessages(ctx context.Context, roomID int64, limit int) ([]chat.Message, error) {
	req := RecentMessagesRequest{RoomID: roomID, Limit: limit}
	var resp RecentMessagesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecentMessages,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, serviceError(ServiceRecentMessages, err)
	}
	return lo.Map(resp.Messages, func(m MessageResponse, _ int) chat.Message {
		return chat.Message{
			RoomID:    m.RoomID,
			Sender:    chat.Identity{UserID: m.UserID, DisplayName: m.UserName},
			Kind:      m.Kind,
			Text:      m.Content,
			CreatedAt: m.CreatedAt,
		}
	}), nil
}
