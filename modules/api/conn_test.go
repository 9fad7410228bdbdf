package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/roomchat/domain/chat"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSConn_Enqueue(t *testing.T) {
	conn := newWSConn(&fakeSocket{}, 1, alice, 1, false)
	assert.NotEmpty(t, conn.ID())
	assert.Equal(t, int64(1), conn.RoomID())
	assert.Equal(t, alice, conn.Identity())

	require.NoError(t, conn.Send([]byte("a")))

	err := conn.Send([]byte("b"))
	assert.ErrorIs(t, err, chat.ErrSlowConsumer)
	assert.ErrorIs(t, err, chat.ErrDelivery)

	conn.close()
	conn.close()
	assert.ErrorIs(t, conn.Send([]byte("c")), chat.ErrConnectionClosed)
}

func TestWSConn_WritePumpOrder(t *testing.T) {
	sock := &fakeSocket{}
	conn := newWSConn(sock, 1, alice, 8, false)
	go conn.writePump()

	for _, frame := range []string{"one", "two", "three"} {
		require.NoError(t, conn.Send([]byte(frame)))
	}

	require.Eventually(t, func() bool {
		return len(sock.frames()) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, sock.frames())

	conn.close()
	conn.wait()
}

func TestWSConn_WriteFailureClosesConn(t *testing.T) {
	sock := &fakeSocket{err: errors.New("broken pipe")}
	conn := newWSConn(sock, 1, alice, 8, false)
	go conn.writePump()

	require.NoError(t, conn.Send([]byte("x")))
	conn.wait()
	assert.ErrorIs(t, conn.Send([]byte("y")), chat.ErrConnectionClosed)
}

func TestWSConn_DeliverWrapsOnTopicPath(t *testing.T) {
	bare := newWSConn(&fakeSocket{}, 1, alice, 1, false)
	require.NoError(t, bare.Deliver(topic.RoomKey(1), []byte(`{"roomNo":1}`)))
	assert.Equal(t, `{"roomNo":1}`, string(<-bare.outbox))

	wrapped := newWSConn(&fakeSocket{}, 0, alice, 1, true)
	require.NoError(t, wrapped.Deliver(topic.RoomKey(1), []byte(`{"roomNo":1}`)))

	var env Envelope
	require.NoError(t, json.Unmarshal(<-wrapped.outbox, &env))
	assert.Equal(t, CommandMessage, env.Command)
	assert.Equal(t, topic.RoomKey(1), env.Destination)
	assert.JSONEq(t, `{"roomNo":1}`, string(env.Body))
}

func TestHandleEnvelope(t *testing.T) {
	f := newFixture(t, Config{})
	m := f.module
	ctx := context.Background()
	conn := newWSConn(&fakeSocket{}, 0, alice, 8, true)

	require.NoError(t, m.handleEnvelope(ctx, conn, Envelope{Command: CommandSubscribe, Destination: topic.RoomKey(3)}))
	assert.Equal(t, 1, m.subs.Count(topic.RoomKey(3)))

	err := m.handleEnvelope(ctx, conn, Envelope{Command: CommandSubscribe, Destination: "/queue/private"})
	assert.ErrorIs(t, err, errUnknownDestination)

	require.NoError(t, m.handleEnvelope(ctx, conn, Envelope{Command: CommandSend, Destination: "/app/chat/enter/3"}))
	require.NoError(t, m.handleEnvelope(ctx, conn, Envelope{
		Command:     CommandSend,
		Destination: "/app/chat/message/3",
		Body:        json.RawMessage(`{"roomNo":3}`),
	}))
	require.NoError(t, m.handleEnvelope(ctx, conn, Envelope{Command: CommandSend, Destination: "/app/chat/exit/3"}))

	assert.Equal(t, []int64{3}, f.presence.enters)
	assert.Equal(t, []int64{3}, f.presence.exits)
	require.Len(t, f.router.topics, 1)
	assert.Equal(t, topicFrame{roomID: 3, who: alice, raw: `{"roomNo":3}`}, f.router.topics[0])

	err = m.handleEnvelope(ctx, conn, Envelope{
		Command:     CommandSend,
		Destination: "/app/notice/send",
		Body:        json.RawMessage(`{"message":"hello"}`),
	})
	assert.ErrorIs(t, err, chatmod.ErrNotPermitted)

	require.NoError(t, m.handleEnvelope(ctx, conn, Envelope{Command: CommandUnsubscribe, Destination: topic.RoomKey(3)}))
	assert.Zero(t, m.subs.Count(topic.RoomKey(3)))

	err = m.handleEnvelope(ctx, conn, Envelope{Command: "CONNECT"})
	assert.ErrorIs(t, err, errUnknownCommand)
}

func TestHandleEnvelope_UnknownRoom(t *testing.T) {
	f := newFixture(t, Config{})
	f.presence.missing = map[int64]bool{999: true}
	conn := newWSConn(&fakeSocket{}, 0, alice, 8, true)
	ctx := context.Background()

	err := f.module.handleEnvelope(ctx, conn, Envelope{
		Command:     CommandSend,
		Destination: "/app/chat/message/999",
		Body:        json.RawMessage(`{"roomNo":999,"message":"hi"}`),
	})
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
	assert.Empty(t, f.router.topics, "frames for unknown rooms are not routed")

	err = f.module.handleEnvelope(ctx, conn, Envelope{Command: CommandSend, Destination: "/app/chat/exit/999"})
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
	assert.Empty(t, f.presence.exits)

	text, report := clientError(err)
	assert.True(t, report)
	assert.Equal(t, chat.ErrRoomNotFound.Error(), text)
}

func TestHandleEnvelope_AdminNotice(t *testing.T) {
	f := newFixture(t, Config{})
	conn := newWSConn(&fakeSocket{}, 0, root, 8, true)

	require.NoError(t, f.module.handleEnvelope(context.Background(), conn, Envelope{
		Command:     CommandSend,
		Destination: "/app/notice/send",
		Body:        json.RawMessage(`{"message":"maintenance at noon"}`),
	}))
	assert.Equal(t, []string{"maintenance at noon"}, f.router.notices)
}

func TestClientError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		report bool
	}{
		{"nil", nil, false},
		{"malformed", chat.ErrMalformedMessage, true},
		{"room not found", chat.ErrRoomNotFound, true},
		{"not permitted", chatmod.ErrNotPermitted, true},
		{"unknown command", errUnknownCommand, true},
		{"persistence is silent", chat.ErrPersistence, false},
		{"delivery is silent", chat.ErrSlowConsumer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, report := clientError(tt.err)
			assert.Equal(t, tt.report, report)
		})
	}
}
