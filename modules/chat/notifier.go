package chat

import (
	"context"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/registry"
	"github.com/example/roomchat/modules/topic"
	"github.com/go-monolith/mono/pkg/types"
)

// DeliveryMode selects how room messages reach live connections.
type DeliveryMode string

const (
	// DeliveryDirect iterates the room registry snapshot.
	DeliveryDirect DeliveryMode = "direct"
	// DeliveryTopic publishes on the room topic.
	DeliveryTopic DeliveryMode = "topic"
)

// DirectNotifier sends to every connection in the room's registry snapshot.
type DirectNotifier struct {
	registry *registry.Registry
	logger   types.Logger
}

// NewDirectNotifier creates a DirectNotifier over reg.
func NewDirectNotifier(reg *registry.Registry, logger types.Logger) *DirectNotifier {
	return &DirectNotifier{
		registry: reg,
		logger:   logger,
	}
}

// NotifyRoom implements Notifier. Send failures are logged per recipient
// and never stop delivery to the rest of the snapshot.
func (n *DirectNotifier) NotifyRoom(_ context.Context, msg chat.Message) error {
	payload, err := chat.EncodeFrame(msg)
	if err != nil {
		return err
	}

	conns := n.registry.Snapshot(msg.RoomID)
	failed := 0
	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			failed++
			n.logger.Warn("Failed to deliver message",
				"roomID", msg.RoomID,
				"connID", conn.ID(),
				"error", err)
		}
	}

	n.logger.Debug("Delivered message",
		"roomID", msg.RoomID,
		"kind", string(msg.Kind),
		"recipients", len(conns),
		"failed", failed)
	return nil
}

// TopicNotifier publishes to the room topic, or the notice topic for notices.
type TopicNotifier struct {
	dispatcher *topic.Dispatcher
}

// NewTopicNotifier creates a TopicNotifier over dispatcher.
func NewTopicNotifier(dispatcher *topic.Dispatcher) *TopicNotifier {
	return &TopicNotifier{dispatcher: dispatcher}
}

// NotifyRoom implements Notifier.
func (n *TopicNotifier) NotifyRoom(ctx context.Context, msg chat.Message) error {
	key := topic.RoomKey(msg.RoomID)
	if msg.Kind == chat.KindNotice {
		key = topic.NoticeKey
	}
	return n.dispatcher.Publish(ctx, key, msg)
}
