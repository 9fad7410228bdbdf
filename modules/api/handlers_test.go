package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/roomchat/domain/chat"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, f *fixture, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.module.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t, Config{})

	resp := doRequest(t, f, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "direct", health.Details["mode"])
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name       string
		token      string
		body       any
		wantStatus int
	}{
		{"no token", "", CreateRoomRequest{Title: "general"}, http.StatusUnauthorized},
		{"bad token", "nope", CreateRoomRequest{Title: "general"}, http.StatusUnauthorized},
		{"empty title", "tok-alice", CreateRoomRequest{Title: "   "}, http.StatusBadRequest},
		{"too long", "tok-alice", CreateRoomRequest{Title: strings.Repeat("x", 101)}, http.StatusBadRequest},
		{"created", "tok-alice", CreateRoomRequest{Title: " general "}, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, f, http.MethodPost, "/api/v1/rooms", tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	room, err := f.rooms.GetRoom(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "general", room.Title)
	assert.Equal(t, alice.UserID, room.OwnerID)
}

func TestCreateRoom_StoreFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.rooms.err = chat.ErrPersistence

	resp := doRequest(t, f, http.MethodPost, "/api/v1/rooms", "tok-alice", CreateRoomRequest{Title: "general"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	errResp := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "server_error", errResp.Error)
}

func TestListAndGetRooms(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.rooms.OpenRoom(context.Background(), "general", alice)
	require.NoError(t, err)
	_, err = f.rooms.OpenRoom(context.Background(), "random", alice)
	require.NoError(t, err)

	resp := doRequest(t, f, http.MethodGet, "/api/v1/rooms", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[RoomListResponse](t, resp)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "general", list.Rooms[0].Title)

	resp = doRequest(t, f, http.MethodGet, "/api/v1/rooms/2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	room := decodeBody[chatmod.RoomView](t, resp)
	assert.Equal(t, int64(2), room.ID)

	resp = doRequest(t, f, http.MethodGet, "/api/v1/rooms/42", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, f, http.MethodGet, "/api/v1/rooms/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMessages(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.rooms.OpenRoom(context.Background(), "general", alice)
	require.NoError(t, err)
	f.rooms.history = []chat.Message{{
		RoomID:    1,
		Sender:    alice,
		Kind:      chat.KindChat,
		Text:      "hi",
		CreatedAt: time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC),
	}}

	resp := doRequest(t, f, http.MethodGet, "/api/v1/rooms/1/messages?limit=10", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	history := decodeBody[HistoryResponse](t, resp)
	assert.Equal(t, int64(1), history.RoomNo)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, chat.Frame{
		RoomNo:     1,
		UserNo:     1,
		UserName:   "alice",
		Message:    "hi",
		Type:       chat.KindChat,
		CreateDate: "2024-05-17",
	}, history.Messages[0])

	resp = doRequest(t, f, http.MethodGet, "/api/v1/rooms/7/messages", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostNotice(t *testing.T) {
	f := newFixture(t, Config{})

	resp := doRequest(t, f, http.MethodPost, "/api/v1/notices", "tok-alice", NoticeRequest{Message: "maintenance"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doRequest(t, f, http.MethodPost, "/api/v1/notices", "tok-root", NoticeRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, f, http.MethodPost, "/api/v1/notices", "tok-root", NoticeRequest{Message: "maintenance"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"maintenance"}, f.router.notices)
}

func TestIssueToken(t *testing.T) {
	f := newFixture(t, Config{AllowTokenIssue: true})

	resp := doRequest(t, f, http.MethodPost, "/api/v1/tokens", "", TokenRequest{UserNo: 5, UserName: "bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := decodeBody[TokenResponse](t, resp)
	assert.Equal(t, "tok-bob", token.Token)
	assert.Equal(t, "Bearer", token.TokenType)

	resp = doRequest(t, f, http.MethodPost, "/api/v1/tokens", "", TokenRequest{UserName: "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, f, http.MethodPost, "/api/v1/tokens", "", TokenRequest{UserNo: 5, UserName: "fail"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestIssueToken_Disabled(t *testing.T) {
	f := newFixture(t, Config{})

	resp := doRequest(t, f, http.MethodPost, "/api/v1/tokens", "", TokenRequest{UserNo: 5, UserName: "bob"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t, Config{})

	for _, path := range []string{"/ws/rooms/1", "/ws/topics"} {
		resp := doRequest(t, f, http.MethodGet, path, "tok-alice", nil)
		assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode, path)
	}
}

func TestModule_StartRequiresDependencies(t *testing.T) {
	m := NewModule(Config{Port: "0"}, &mockLogger{})
	assert.Equal(t, "api", m.Name())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat module dependency not set")

	m.SetChat(chatmod.NewModule(chatmod.DeliveryDirect, &mockLogger{}))
	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat module not started")

	require.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}
