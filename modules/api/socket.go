package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/roomchat/domain/chat"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/identity"
	"github.com/example/roomchat/modules/topic"
	"github.com/gofiber/contrib/websocket"
)

// handleRoomSocket serves GET /ws/rooms/:id, the direct delivery path.
// Frames in both directions are bare chat frames.
func (m *Module) handleRoomSocket(c *websocket.Conn) {
	ctx := context.Background()
	who, _ := c.Locals(identity.LocalsKey).(chat.Identity)
	roomID, _ := c.Locals(roomIDKey).(int64)

	conn := newWSConn(c, roomID, who, m.cfg.SendBuffer, false)
	go conn.writePump()

	m.subs.Subscribe(topic.NoticeKey, conn)
	if m.mode == chatmod.DeliveryTopic {
		m.subs.Subscribe(topic.RoomKey(roomID), conn)
	}

	if err := m.presence.OnConnect(ctx, conn); err != nil {
		m.subs.UnsubscribeAll(conn.ID())
		conn.close()
		conn.wait()
		m.logger.Warn("Rejected websocket connection",
			"connID", conn.ID(),
			"roomID", roomID,
			"userID", who.UserID,
			"error", err)
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room not found"),
			time.Now().Add(writeWait))
		return
	}

	m.active.Add(1)
	defer func() {
		m.active.Add(-1)
		m.subs.UnsubscribeAll(conn.ID())
		m.presence.OnDisconnect(ctx, conn)
		conn.close()
		conn.wait()
	}()

	m.logger.Info("WebSocket connected", "connID", conn.ID(), "roomID", roomID, "userID", who.UserID)

	m.readLoop(c, conn, func(raw []byte) {
		if err := m.router.Handle(ctx, conn, raw); err != nil {
			m.logger.Debug("Frame not delivered", "connID", conn.ID(), "error", err)
		}
	})

	m.logger.Info("WebSocket disconnected", "connID", conn.ID(), "roomID", roomID)
}

// handleTopicSocket serves GET /ws/topics, the publish/subscribe path.
func (m *Module) handleTopicSocket(c *websocket.Conn) {
	ctx := context.Background()
	who, _ := c.Locals(identity.LocalsKey).(chat.Identity)

	conn := newWSConn(c, 0, who, m.cfg.SendBuffer, true)
	go conn.writePump()

	m.active.Add(1)
	defer func() {
		m.active.Add(-1)
		m.subs.UnsubscribeAll(conn.ID())
		conn.close()
		conn.wait()
	}()

	m.logger.Info("Topic websocket connected", "connID", conn.ID(), "userID", who.UserID)

	m.readLoop(c, conn, func(raw []byte) {
		env, err := decodeEnvelope(raw)
		if err == nil {
			err = m.handleEnvelope(ctx, conn, env)
		}
		if msg, ok := clientError(err); ok {
			if sendErr := conn.Send(encodeError(msg)); sendErr != nil {
				m.logger.Debug("Failed to send error frame", "connID", conn.ID(), "error", sendErr)
			}
		}
	})

	m.logger.Info("Topic websocket disconnected", "connID", conn.ID())
}

func (m *Module) readLoop(c *websocket.Conn, conn *wsConn, handle func([]byte)) {
	c.SetReadLimit(int64(m.cfg.MaxMessageSize))
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("WebSocket read error", "connID", conn.ID(), "error", err)
			}
			return
		}
		handle(raw)
	}
}

// handleEnvelope executes one command received on the topic path.
func (m *Module) handleEnvelope(ctx context.Context, conn *wsConn, env Envelope) error {
	switch env.Command {
	case CommandSubscribe:
		if !topic.Valid(env.Destination) {
			return errUnknownDestination
		}
		m.subs.Subscribe(env.Destination, conn)
		return nil

	case CommandUnsubscribe:
		m.subs.Unsubscribe(env.Destination, conn.ID())
		return nil

	case CommandSend:
		return m.handleSend(ctx, conn, env)

	default:
		return errUnknownCommand
	}
}

func (m *Module) handleSend(ctx context.Context, conn *wsConn, env Envelope) error {
	action, roomID, err := parseAppDestination(env.Destination)
	if err != nil {
		return err
	}

	who := conn.Identity()
	switch action {
	case actionEnter:
		return m.presence.OnEnterRequest(ctx, roomID, who)
	case actionExit:
		return m.presence.OnExitRequest(ctx, roomID, who)
	case actionMessage:
		if err := m.presence.RequireRoom(ctx, roomID); err != nil {
			return err
		}
		return m.router.HandleTopic(ctx, roomID, who, env.Body)
	default:
		var body noticeBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return chat.ErrMalformedMessage
		}
		return m.router.Notice(ctx, who, body.Message)
	}
}

// clientError returns the text of an ERROR envelope for err. Persistence
// and delivery failures are not reported to the sender.
func clientError(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, chat.ErrMalformedMessage),
		errors.Is(err, chat.ErrRoomNotFound),
		errors.Is(err, chatmod.ErrNotPermitted),
		errors.Is(err, errUnknownCommand),
		errors.Is(err, errUnknownDestination):
		return err.Error(), true
	default:
		return "", false
	}
}
