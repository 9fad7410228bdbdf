package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
)

// ErrNotPermitted is returned when an identity lacks the rights for an action.
var ErrNotPermitted = errors.New("not permitted")

// Router decodes inbound frames, persists chat content and hands every
// accepted message to a Notifier.
type Router struct {
	messages MessageStore
	live     Notifier
	topics   Notifier
	now      func() time.Time
	logger   types.Logger
}

// NewRouter creates a Router. live serves connections on the direct path,
// topics serves the publish/subscribe path and site-wide notices.
func NewRouter(messages MessageStore, live, topics Notifier, logger types.Logger) *Router {
	return &Router{
		messages: messages,
		live:     live,
		topics:   topics,
		now:      time.Now,
		logger:   logger,
	}
}

// Handle processes one raw frame received on conn. The sender identity is
// always the one bound to the connection. Errors are returned for the
// caller to log; none of them should close the connection.
func (r *Router) Handle(ctx context.Context, conn registry.Conn, raw []byte) error {
	msg, err := r.decode(conn.RoomID(), conn.Identity(), raw)
	if err != nil {
		r.logger.Warn("Dropping malformed frame", "connID", conn.ID(), "error", err)
		return err
	}
	return r.dispatch(ctx, msg, r.live)
}

// HandleTopic processes a raw frame sent to roomID over the topic path.
func (r *Router) HandleTopic(ctx context.Context, roomID int64, who chat.Identity, raw []byte) error {
	msg, err := r.decode(roomID, who, raw)
	if err != nil {
		r.logger.Warn("Dropping malformed frame", "roomID", roomID, "userID", who.UserID, "error", err)
		return err
	}
	return r.dispatch(ctx, msg, r.topics)
}

// Route delivers msg through the live notifier.
func (r *Router) Route(ctx context.Context, msg chat.Message) error {
	return r.dispatch(ctx, msg, r.live)
}

// Publish delivers msg through the topic notifier.
func (r *Router) Publish(ctx context.Context, msg chat.Message) error {
	return r.dispatch(ctx, msg, r.topics)
}

// Notice publishes a site-wide notice. Only admins may send one.
func (r *Router) Notice(ctx context.Context, who chat.Identity, text string) error {
	if !who.Admin {
		return fmt.Errorf("%w: user %d cannot send notices", ErrNotPermitted, who.UserID)
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > chat.MaxTextLength {
		return fmt.Errorf("%w: notice must be 1-%d characters", chat.ErrMalformedMessage, chat.MaxTextLength)
	}
	return r.dispatch(ctx, chat.NoticeMessage(who, text, r.now()), r.topics)
}

func (r *Router) decode(roomID int64, who chat.Identity, raw []byte) (chat.Message, error) {
	msg, err := chat.DecodeFrame(raw)
	if err != nil {
		return chat.Message{}, err
	}
	if msg.RoomID != roomID {
		return chat.Message{}, fmt.Errorf("%w: frame for room %d received on room %d",
			chat.ErrMalformedMessage, msg.RoomID, roomID)
	}
	msg.Sender = who
	msg.Kind = chat.KindChat
	msg.CreatedAt = r.now()
	return msg, nil
}

// dispatch is the only place a message is persisted. A persisted kind is
// delivered only after its append succeeded.
func (r *Router) dispatch(ctx context.Context, msg chat.Message, n Notifier) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}

	if msg.Kind.Persisted() {
		if err := r.messages.Append(ctx, msg); err != nil {
			r.logger.Warn("Dropping message after persistence failure",
				"roomID", msg.RoomID,
				"userID", msg.Sender.UserID,
				"error", err)
			if errors.Is(err, chat.ErrPersistence) {
				return err
			}
			return fmt.Errorf("%w: %v", chat.ErrPersistence, err)
		}
	}

	if err := n.NotifyRoom(ctx, msg); err != nil {
		r.logger.Warn("Failed to notify room",
			"roomID", msg.RoomID,
			"kind", string(msg.Kind),
			"error", err)
		return err
	}
	return nil
}
