package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/broadcast"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/identity"
	"github.com/example/roomchat/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/samber/lo"
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

var (
	alice = chat.Identity{UserID: 1, DisplayName: "alice"}
	root  = chat.Identity{UserID: 99, DisplayName: "root", Admin: true}
)

type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[int64]chatmod.RoomView
	history []chat.Message
	err     error
	nextID  int64
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: make(map[int64]chatmod.RoomView), nextID: 1}
}

func (f *fakeRooms) OpenRoom(_ context.Context, title string, owner chat.Identity) (chatmod.RoomView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return chatmod.RoomView{}, f.err
	}
	view := chatmod.RoomView{Room: chat.Room{ID: f.nextID, Title: title, OwnerID: owner.UserID}}
	f.rooms[view.ID] = view
	f.nextID++
	return view, nil
}

func (f *fakeRooms) ListRooms(_ context.Context) ([]chatmod.RoomView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	views := make([]chatmod.RoomView, 0, len(f.rooms))
	for id := int64(1); id < f.nextID; id++ {
		if v, ok := f.rooms[id]; ok {
			views = append(views, v)
		}
	}
	return views, nil
}

func (f *fakeRooms) GetRoom(_ context.Context, roomID int64) (chatmod.RoomView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.rooms[roomID]
	if !ok {
		return chatmod.RoomView{}, chat.ErrRoomNotFound
	}
	return v, nil
}

func (f *fakeRooms) History(ctx context.Context, roomID int64, _ int) ([]chat.Message, error) {
	if _, err := f.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return f.history, nil
}

type topicFrame struct {
	roomID int64
	who    chat.Identity
	raw    string
}

type fakeRouter struct {
	mu      sync.Mutex
	handled [][]byte
	topics  []topicFrame
	notices []string
	err     error
}

func (f *fakeRouter) Handle(_ context.Context, _ registry.Conn, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, raw)
	return f.err
}

func (f *fakeRouter) handledFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Map(f.handled, func(raw []byte, _ int) string { return string(raw) })
}

func (f *fakeRouter) HandleTopic(_ context.Context, roomID int64, who chat.Identity, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topicFrame{roomID: roomID, who: who, raw: string(raw)})
	return f.err
}

func (f *fakeRouter) Notice(_ context.Context, who chat.Identity, text string) error {
	if !who.Admin {
		return chatmod.ErrNotPermitted
	}
	if text == "" {
		return chat.ErrMalformedMessage
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return f.err
}

type fakePresence struct {
	mu          sync.Mutex
	connects    []string
	disconnects []string
	enters      []int64
	exits       []int64
	missing     map[int64]bool
	err         error
}

func (f *fakePresence) OnConnect(_ context.Context, conn registry.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.connects = append(f.connects, conn.ID())
	return nil
}

func (f *fakePresence) OnDisconnect(_ context.Context, conn registry.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, conn.ID())
	return false
}

func (f *fakePresence) OnEnterRequest(_ context.Context, roomID int64, _ chat.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.enters = append(f.enters, roomID)
	return nil
}

func (f *fakePresence) OnExitRequest(_ context.Context, roomID int64, _ chat.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[roomID] {
		return chat.ErrRoomNotFound
	}
	f.exits = append(f.exits, roomID)
	return nil
}

func (f *fakePresence) RequireRoom(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[roomID] {
		return chat.ErrRoomNotFound
	}
	return nil
}

func (f *fakePresence) lifecycle() (connects, disconnects []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connects...), append([]string(nil), f.disconnects...)
}

// fakeTokens maps the token "tok-<name>" to a fixed identity.
type fakeTokens struct {
	identities map[string]chat.Identity
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{identities: map[string]chat.Identity{
		"tok-alice": alice,
		"tok-root":  root,
	}}
}

func (f *fakeTokens) Resolve(token string) (chat.Identity, error) {
	who, ok := f.identities[token]
	if !ok {
		return chat.Identity{}, identity.ErrInvalidToken
	}
	return who, nil
}

func (f *fakeTokens) Issue(who chat.Identity) (string, error) {
	if who.DisplayName == "fail" {
		return "", errors.New("signing failed")
	}
	return "tok-" + who.DisplayName, nil
}

type fixture struct {
	module   *Module
	rooms    *fakeRooms
	router   *fakeRouter
	presence *fakePresence
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = "*"
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = 8
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 8192
	}

	f := &fixture{
		module:   NewModule(cfg, &mockLogger{}),
		rooms:    newFakeRooms(),
		router:   &fakeRouter{},
		presence: &fakePresence{},
	}
	m := f.module
	m.mode = chatmod.DeliveryDirect
	m.rooms = f.rooms
	m.router = f.router
	m.presence = f.presence
	m.subs = broadcast.NewSubscriptions()
	m.tokens = newFakeTokens()
	m.app = m.newApp()
	return f
}

// fakeSocket records frames written by a writePump.
type fakeSocket struct {
	mu      sync.Mutex
	written []string
	err     error
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, string(data))
	return nil
}

func (s *fakeSocket) WriteControl(_ int, _ []byte, _ time.Time) error { return nil }
func (s *fakeSocket) SetWriteDeadline(_ time.Time) error             { return nil }

func (s *fakeSocket) frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}
