package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/topic"
	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve runs the fixture's app on a loopback listener and returns its address.
func serve(t *testing.T, f *fixture) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = f.module.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.module.app.ShutdownWithTimeout(time.Second) })
	return ln.Addr().String()
}

func dial(t *testing.T, addr, path string) *websocket.Conn {
	t.Helper()
	client, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readEnvelope(t *testing.T, client *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func subscribers(f *fixture) int {
	_, n := f.module.subs.Stats()
	return n
}

func TestRoomSocket_RejectedJoinClosesWithPolicyViolation(t *testing.T) {
	f := newFixture(t, Config{})
	f.presence.err = chat.ErrRoomNotFound
	client := dial(t, serve(t, f), "/ws/rooms/404?token=tok-alice")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	assert.Zero(t, subscribers(f), "rejected connections leave no subscriptions")
	assert.Zero(t, f.module.active.Load())
	connects, disconnects := f.presence.lifecycle()
	assert.Empty(t, connects)
	assert.Empty(t, disconnects, "a connection that never joined is not unbound")
}

func TestRoomSocket_FramesAndDisconnect(t *testing.T) {
	f := newFixture(t, Config{})
	client := dial(t, serve(t, f), "/ws/rooms/1?token=tok-alice")

	require.Eventually(t, func() bool {
		connects, _ := f.presence.lifecycle()
		return len(connects) == 1 && f.module.active.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.module.subs.Count(topic.NoticeKey))

	frame := `{"roomNo":1,"userNo":1,"userName":"alice","message":"hi"}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(frame)))
	require.Eventually(t, func() bool {
		return len(f.router.handledFrames()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{frame}, f.router.handledFrames())

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	require.Eventually(t, func() bool {
		_, disconnects := f.presence.lifecycle()
		return len(disconnects) == 1 && subscribers(f) == 0 && f.module.active.Load() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomSocket_RequiresToken(t *testing.T) {
	f := newFixture(t, Config{})
	addr := serve(t, f)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/rooms/1", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTopicSocket_SubscribeDeliverAndErrors(t *testing.T) {
	f := newFixture(t, Config{})
	f.presence.missing = map[int64]bool{999: true}
	client := dial(t, serve(t, f), "/ws/topics?token=tok-alice")

	sub, err := json.Marshal(Envelope{Command: CommandSubscribe, Destination: topic.RoomKey(3)})
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, sub))
	require.Eventually(t, func() bool {
		return f.module.subs.Count(topic.RoomKey(3)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	delivered, failures := f.module.subs.Deliver(topic.RoomKey(3), []byte(`{"roomNo":3,"message":"hi"}`))
	assert.Equal(t, 1, delivered)
	assert.Empty(t, failures)

	env := readEnvelope(t, client)
	assert.Equal(t, CommandMessage, env.Command)
	assert.Equal(t, topic.RoomKey(3), env.Destination)
	assert.JSONEq(t, `{"roomNo":3,"message":"hi"}`, string(env.Body))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"command":"CONNECT"}`)))
	env = readEnvelope(t, client)
	assert.Equal(t, CommandError, env.Command)
	assert.Equal(t, errUnknownCommand.Error(), env.Message)

	send := `{"command":"SEND","destination":"/app/chat/message/999","body":{"roomNo":999,"userNo":1,"userName":"alice","message":"hi"}}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(send)))
	env = readEnvelope(t, client)
	assert.Equal(t, CommandError, env.Command)
	assert.Equal(t, chat.ErrRoomNotFound.Error(), env.Message)
	assert.Empty(t, f.router.topics)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return subscribers(f) == 0 && f.module.active.Load() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
