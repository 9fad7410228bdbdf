package api

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/broadcast"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/identity"
	"github.com/example/roomchat/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// RoomService is the room functionality the REST handlers need.
type RoomService interface {
	OpenRoom(ctx context.Context, title string, owner chat.Identity) (chatmod.RoomView, error)
	ListRooms(ctx context.Context) ([]chatmod.RoomView, error)
	GetRoom(ctx context.Context, roomID int64) (chatmod.RoomView, error)
	History(ctx context.Context, roomID int64, limit int) ([]chat.Message, error)
}

// MessageRouter accepts inbound frames and notices.
type MessageRouter interface {
	Handle(ctx context.Context, conn registry.Conn, raw []byte) error
	HandleTopic(ctx context.Context, roomID int64, who chat.Identity, raw []byte) error
	Notice(ctx context.Context, who chat.Identity, text string) error
}

// PresenceController tracks connection lifecycle.
type PresenceController interface {
	OnConnect(ctx context.Context, conn registry.Conn) error
	OnDisconnect(ctx context.Context, conn registry.Conn) bool
	OnEnterRequest(ctx context.Context, roomID int64, who chat.Identity) error
	OnExitRequest(ctx context.Context, roomID int64, who chat.Identity) error
	RequireRoom(ctx context.Context, roomID int64) error
}

// TokenService resolves and issues session tokens.
type TokenService interface {
	identity.Resolver
	Issue(who chat.Identity) (string, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Port            string
	AllowedOrigins  string
	AllowTokenIssue bool
	SendBuffer      int
	MaxMessageSize  int
}

// Module is the HTTP API module serving REST endpoints and both
// websocket paths.
type Module struct {
	cfg    Config
	app    *fiber.App
	source *chatmod.Module

	mode     chatmod.DeliveryMode
	rooms    RoomService
	router   MessageRouter
	presence PresenceController
	subs     *broadcast.Subscriptions
	tokens   TokenService

	active atomic.Int64
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new API module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// SetChat sets the chat module whose router, presence controller and room
// service back the handlers (called from main.go).
func (m *Module) SetChat(source *chatmod.Module) {
	m.source = source
}

// SetSubscriptions sets the topic subscription table (called from main.go).
func (m *Module) SetSubscriptions(subs *broadcast.Subscriptions) {
	m.subs = subs
}

// SetTokens sets the session token service (called from main.go).
func (m *Module) SetTokens(tokens TokenService) {
	m.tokens = tokens
}

// Start initializes and starts the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if err := m.resolveChat(); err != nil {
		return err
	}
	if m.subs == nil {
		return fmt.Errorf("subscription table dependency not set")
	}
	if m.tokens == nil {
		return fmt.Errorf("token service dependency not set")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.cfg.Port, "mode", string(m.mode))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":               m.cfg.Port,
			"active_connections": m.active.Load(),
		},
	}
}

func (m *Module) resolveChat() error {
	if m.rooms != nil && m.router != nil && m.presence != nil {
		return nil
	}
	if m.source == nil {
		return fmt.Errorf("chat module dependency not set")
	}
	if m.source.Router() == nil {
		return fmt.Errorf("chat module not started")
	}
	m.mode = m.source.Mode()
	m.rooms = m.source.Rooms()
	m.router = m.source.Router()
	m.presence = m.source.Presence()
	return nil
}

func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles Fiber errors.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   errorCode(code),
		Message: message,
	})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	default:
		return "server_error"
	}
}
