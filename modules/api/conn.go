package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// socket is the write side of a websocket connection.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
}

// wsConn is a connection handle with a bounded outbox drained by a single
// writer goroutine. It satisfies registry.Conn and broadcast.Subscriber.
type wsConn struct {
	id     string
	roomID int64
	who    chat.Identity
	socket socket
	// wrap marks topic path connections whose deliveries get a MESSAGE envelope.
	wrap bool

	outbox  chan []byte
	done    chan struct{}
	stopped chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSConn(s socket, roomID int64, who chat.Identity, buffer int, wrap bool) *wsConn {
	return &wsConn{
		id:      uuid.New().String(),
		roomID:  roomID,
		who:     who,
		socket:  s,
		wrap:    wrap,
		outbox:  make(chan []byte, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (c *wsConn) ID() string              { return c.id }
func (c *wsConn) RoomID() int64           { return c.roomID }
func (c *wsConn) Identity() chat.Identity { return c.who }

// Send queues a bare frame for writing.
func (c *wsConn) Send(payload []byte) error {
	return c.enqueue(payload)
}

// Deliver queues a topic frame, wrapped in an envelope on the topic path.
func (c *wsConn) Deliver(destination string, payload []byte) error {
	if !c.wrap {
		return c.enqueue(payload)
	}
	data, err := encodeMessage(destination, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", chat.ErrDelivery, err)
	}
	return c.enqueue(data)
}

func (c *wsConn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return chat.ErrConnectionClosed
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return chat.ErrSlowConsumer
	}
}

// writePump writes queued frames in order and keeps the connection alive
// with pings. It returns when the connection is closed or a write fails.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		close(c.stopped)
	}()

	for {
		select {
		case data := <-c.outbox:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued once the connection is closing.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.outbox:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// close stops accepting frames. Safe to call more than once.
func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// wait blocks until writePump has returned.
func (c *wsConn) wait() {
	<-c.stopped
}
