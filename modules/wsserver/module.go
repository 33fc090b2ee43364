package wsserver

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/anonchat/modules/broadcast"
	"github.com/example/anonchat/modules/identity"
	"github.com/example/anonchat/modules/rooms"
)

// Module is the Fiber HTTP/WebSocket surface.
type Module struct {
	app      *fiber.App
	handlers *Handlers

	addr           string
	allowedOrigins string
	roomsModule    *rooms.Module
	identityModule *identity.Module
	hub            *broadcast.Hub
	logger         types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)

// NewModule creates the server module.
func NewModule(addr, allowedOrigins string, roomsModule *rooms.Module, identityModule *identity.Module, moduleLogger types.Logger) *Module {
	return &Module{
		addr:           addr,
		allowedOrigins: allowedOrigins,
		roomsModule:    roomsModule,
		identityModule: identityModule,
		logger:         moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ws-server"
}

// SetHub injects the broadcast hub (wired in main).
func (m *Module) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// Start builds the Fiber app and begins listening.
func (m *Module) Start(_ context.Context) error {
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}

	m.app = fiber.New(fiber.Config{
		AppName:               "anonchat",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.handlers = NewHandlers(m.roomsModule, m.identityModule.Registry(), m.hub)
	m.registerRoutes()

	// Catch immediate startup failures (port in use, bad addr).
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("Server started", "addr", m.addr)
	return nil
}

// Stop shuts the server down.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("Server stopped")
	return nil
}

func (m *Module) registerRoutes() {
	m.app.Get("/health", m.handlers.HealthCheck)

	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))

	api := m.app.Group("/api")
	api.Post("/rooms", m.handlers.CreateRoom)
	api.Get("/rooms", m.handlers.ListRooms)
	api.Get("/room/:roomId", m.handlers.GetRoom)
}

func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	m.logger.Error("HTTP error", "code", code, "message", message, "error", err)

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
