package api

import (
	"errors"
	"strconv"
	"strings"

	"github.com/example/roomchat/domain/chat"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/identity"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

const roomIDKey = "roomID"

var validate = validator.New()

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	auth := identity.Middleware(m.tokens)

	// Health check
	app.Get("/health", m.healthHandler)

	// REST API v1
	api := app.Group("/api/v1")
	api.Get("/rooms", m.listRooms)
	api.Post("/rooms", auth, m.createRoom)
	api.Get("/rooms/:id", m.getRoom)
	api.Get("/rooms/:id/messages", m.getMessages)
	api.Post("/notices", auth, identity.RequireAdmin(), m.postNotice)
	if m.cfg.AllowTokenIssue {
		api.Post("/tokens", m.issueToken)
	}

	// WebSocket endpoints
	ws := app.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, auth)
	ws.Get("/rooms/:id", requireRoomID, websocket.New(m.handleRoomSocket))
	ws.Get("/topics", websocket.New(m.handleTopicSocket))
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	topics, subscribers := m.subs.Stats()
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":             "api",
			"mode":               string(m.mode),
			"active_connections": m.active.Load(),
			"topics":             topics,
			"subscribers":        subscribers,
		},
	})
}

// listRooms handles GET /api/v1/rooms.
func (m *Module) listRooms(c *fiber.Ctx) error {
	rooms, err := m.rooms.ListRooms(c.UserContext())
	if err != nil {
		m.logger.Warn("Failed to list rooms", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list rooms")
	}
	return c.JSON(RoomListResponse{Rooms: rooms, Total: len(rooms)})
}

// createRoom handles POST /api/v1/rooms.
func (m *Module) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := chatmod.ValidateTitle(req.Title); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	owner, _ := identity.FromContext(c)
	room, err := m.rooms.OpenRoom(c.UserContext(), req.Title, owner)
	if err != nil {
		m.logger.Warn("Failed to open room", "title", req.Title, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to create room")
	}

	m.logger.Info("Room opened", "roomID", room.ID, "ownerID", owner.UserID)
	return c.Status(fiber.StatusCreated).JSON(room)
}

// getRoom handles GET /api/v1/rooms/:id.
func (m *Module) getRoom(c *fiber.Ctx) error {
	roomID, err := parseRoomID(c)
	if err != nil {
		return err
	}

	room, err := m.rooms.GetRoom(c.UserContext(), roomID)
	if err != nil {
		return roomError(err)
	}
	return c.JSON(room)
}

// getMessages handles GET /api/v1/rooms/:id/messages.
func (m *Module) getMessages(c *fiber.Ctx) error {
	roomID, err := parseRoomID(c)
	if err != nil {
		return err
	}

	messages, err := m.rooms.History(c.UserContext(), roomID, c.QueryInt("limit", 0))
	if err != nil {
		return roomError(err)
	}

	return c.JSON(HistoryResponse{
		RoomNo: roomID,
		Messages: lo.Map(messages, func(msg chat.Message, _ int) chat.Frame {
			return chat.ToFrame(msg)
		}),
	})
}

// postNotice handles POST /api/v1/notices.
func (m *Module) postNotice(c *fiber.Ctx) error {
	var req NoticeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	who, _ := identity.FromContext(c)
	if err := m.router.Notice(c.UserContext(), who, req.Message); err != nil {
		switch {
		case errors.Is(err, chatmod.ErrNotPermitted):
			return fiber.NewError(fiber.StatusForbidden, "Admin privileges required")
		case errors.Is(err, chat.ErrMalformedMessage):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to publish notice")
		}
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// issueToken handles POST /api/v1/tokens.
func (m *Module) issueToken(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "userNo and userName are required")
	}

	token, err := m.tokens.Issue(chat.Identity{
		UserID:      req.UserNo,
		DisplayName: req.UserName,
		Admin:       req.Admin,
	})
	if err != nil {
		m.logger.Error("Failed to issue token", "userID", req.UserNo, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to issue token")
	}
	return c.Status(fiber.StatusCreated).JSON(TokenResponse{Token: token, TokenType: "Bearer"})
}

// requireRoomID validates the :id parameter before a websocket upgrade.
func requireRoomID(c *fiber.Ctx) error {
	roomID, err := parseRoomID(c)
	if err != nil {
		return err
	}
	c.Locals(roomIDKey, roomID)
	return c.Next()
}

func parseRoomID(c *fiber.Ctx) (int64, error) {
	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid room ID")
	}
	return roomID, nil
}

func roomError(err error) error {
	if errors.Is(err, chat.ErrRoomNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Room not found")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Failed to load room")
}
