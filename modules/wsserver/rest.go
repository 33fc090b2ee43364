package wsserver

import (
	"github.com/gofiber/fiber/v2"
)

// createRoomRequest is the REST body for room creation. It shares the
// socket create path, so the directory broadcast fires here too.
type createRoomRequest struct {
	Name   string `json:"name" validate:"required,max=100"`
	UserID string `json:"userId" validate:"required"`
}

// CreateRoom handles POST /api/rooms.
func (h *Handlers) CreateRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing room name or userId",
		})
	}

	summary := h.rooms.CreateRoom(req.Name, req.UserID)
	return c.JSON(fiber.Map{"id": summary.ID})
}

// ListRooms handles GET /api/rooms.
func (h *Handlers) ListRooms(c *fiber.Ctx) error {
	return c.JSON(h.rooms.ListRooms())
}

// GetRoom handles GET /api/room/:roomId.
func (h *Handlers) GetRoom(c *fiber.Ctx) error {
	summary, ok := h.rooms.RoomSummary(c.Params("roomId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Room not found",
		})
	}
	return c.JSON(summary)
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "anonchat",
	})
}
