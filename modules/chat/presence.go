package chat

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// Presence drives the connect and disconnect lifecycle of room members.
// Room-persistence failures are logged and never block a transition.
type Presence struct {
	rooms    RoomStore
	registry *registry.Registry
	router   *Router
	lookups  singleflight.Group
	now      func() time.Time
	logger   types.Logger
}

// NewPresence creates a Presence controller.
func NewPresence(rooms RoomStore, reg *registry.Registry, router *Router, logger types.Logger) *Presence {
	return &Presence{
		rooms:    rooms,
		registry: reg,
		router:   router,
		now:      time.Now,
		logger:   logger,
	}
}

// OnConnect binds conn into its room and announces the arrival.
// It returns chat.ErrRoomNotFound, leaving conn unbound, when the room has
// no backing record.
func (p *Presence) OnConnect(ctx context.Context, conn registry.Conn) error {
	roomID := conn.RoomID()
	who := conn.Identity()

	if err := p.ensureRoom(ctx, roomID); err != nil {
		return err
	}

	if err := p.rooms.RecordJoin(ctx, roomID, who.UserID); err != nil {
		p.logger.Warn("Failed to record join",
			"roomID", roomID,
			"userID", who.UserID,
			"error", err)
	}

	if err := p.registry.Bind(conn, roomID); err != nil {
		return err
	}
	p.logger.Info("Connection bound",
		"roomID", roomID,
		"userID", who.UserID,
		"connID", conn.ID())

	if err := p.router.Route(ctx, chat.EnterMessage(roomID, who, p.now())); err != nil {
		p.logger.Warn("Failed to announce join", "roomID", roomID, "error", err)
	}
	return nil
}

// OnDisconnect unbinds conn and, once the user has no other live
// connection in the room, removes its join record. It reports whether conn
// was the last live connection of its room.
func (p *Presence) OnDisconnect(ctx context.Context, conn registry.Conn) bool {
	roomID := conn.RoomID()
	who := conn.Identity()

	emptied := p.registry.Unbind(conn, roomID)

	if p.stillPresent(roomID, who.UserID) {
		p.logger.Info("Connection unbound, user still connected",
			"roomID", roomID,
			"userID", who.UserID,
			"connID", conn.ID())
		return emptied
	}

	remaining, err := p.rooms.RecordExit(ctx, roomID, who.UserID)
	if err != nil {
		p.logger.Warn("Failed to record exit",
			"roomID", roomID,
			"userID", who.UserID,
			"error", err)
	}

	p.logger.Info("Connection unbound",
		"roomID", roomID,
		"userID", who.UserID,
		"connID", conn.ID(),
		"participants", remaining)
	if emptied {
		p.logger.Info("Room has no live connections, registry entry removed", "roomID", roomID)
	}
	return emptied
}

// OnEnterRequest records a join made over the topic path and publishes the
// ENTER announcement on the room topic.
func (p *Presence) OnEnterRequest(ctx context.Context, roomID int64, who chat.Identity) error {
	if err := p.ensureRoom(ctx, roomID); err != nil {
		return err
	}

	if err := p.rooms.RecordJoin(ctx, roomID, who.UserID); err != nil {
		p.logger.Warn("Failed to record join",
			"roomID", roomID,
			"userID", who.UserID,
			"error", err)
	}
	return p.router.Publish(ctx, chat.EnterMessage(roomID, who, p.now()))
}

// OnExitRequest handles an explicit leave over the topic path: it removes
// the join record and publishes the EXIT announcement on the room topic.
func (p *Presence) OnExitRequest(ctx context.Context, roomID int64, who chat.Identity) error {
	if err := p.ensureRoom(ctx, roomID); err != nil {
		return err
	}

	if _, err := p.rooms.RecordExit(ctx, roomID, who.UserID); err != nil {
		p.logger.Warn("Failed to record exit",
			"roomID", roomID,
			"userID", who.UserID,
			"error", err)
	}
	return p.router.Publish(ctx, chat.ExitMessage(roomID, who, p.now()))
}

// RequireRoom returns chat.ErrRoomNotFound when roomID has no backing
// record. Lookup failures other than not-found are tolerated.
func (p *Presence) RequireRoom(ctx context.Context, roomID int64) error {
	return p.ensureRoom(ctx, roomID)
}

// stillPresent reports whether userID holds another live connection in roomID.
func (p *Presence) stillPresent(roomID, userID int64) bool {
	return lo.ContainsBy(p.registry.Snapshot(roomID), func(c registry.Conn) bool {
		return c.Identity().UserID == userID
	})
}

// ensureRoom collapses concurrent lookups of the same room into one call.
// Only a definite not-found rejects; lookup failures are logged and let
// the caller proceed.
func (p *Presence) ensureRoom(ctx context.Context, roomID int64) error {
	_, err, _ := p.lookups.Do(strconv.FormatInt(roomID, 10), func() (any, error) {
		return p.rooms.GetRoom(ctx, roomID)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrRoomNotFound):
		p.logger.Warn("Rejected request for unknown room", "roomID", roomID)
		return err
	default:
		p.logger.Warn("Room lookup failed, admitting connection", "roomID", roomID, "error", err)
		return nil
	}
}
