package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

func newMockLogger() types.Logger {
	return &mockLogger{}
}

var fixedNow = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeConn records every frame sent to it.
type fakeConn struct {
	id      string
	roomID  int64
	who     chat.Identity
	sendErr error

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string, roomID int64, userID int64) *fakeConn {
	return &fakeConn{
		id:     id,
		roomID: roomID,
		who:    chat.Identity{UserID: userID, DisplayName: id},
	}
}

func (c *fakeConn) ID() string              { return c.id }
func (c *fakeConn) RoomID() int64           { return c.roomID }
func (c *fakeConn) Identity() chat.Identity { return c.who }

func (c *fakeConn) Send(payload []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) received(t *testing.T) []chat.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]chat.Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f chat.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

type publishedFrame struct {
	key   string
	frame chat.Frame
}

// recordingBroker captures topic publishes.
type recordingBroker struct {
	mu    sync.Mutex
	calls []publishedFrame
	err   error
}

func (b *recordingBroker) Publish(_ context.Context, key string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	var f chat.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, publishedFrame{key: key, frame: f})
	return nil
}

func (b *recordingBroker) published() []publishedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedFrame(nil), b.calls...)
}
