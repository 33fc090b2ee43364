package wsserver

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/example/anonchat/domain/chat"
	"github.com/example/anonchat/modules/broadcast"
	"github.com/example/anonchat/modules/identity"
	"github.com/example/anonchat/modules/rooms"
)

// inboundFrame is the client-side envelope. Data stays raw until the
// event name tells us its shape.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payload shapes.
type joinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type leaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type sendMessagePayload struct {
	Content string `json:"content" validate:"required,max=5000"`
	RoomID  string `json:"roomId" validate:"required"`
}

type sendFilePayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	FileURL  string `json:"fileUrl" validate:"required,max=2048"`
	FileName string `json:"fileName" validate:"required,max=255"`
	FileSize int64  `json:"fileSize" validate:"gte=0"`
}

type createRoomPayload struct {
	Name string `json:"name" validate:"required,max=100"`
}

type roomCreatedPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type roomJoinedPayload struct {
	Room     chat.RoomSnapshot `json:"room"`
	Messages []chat.Message    `json:"messages"`
}

// Handlers dispatches inbound wire events to store operations. All
// socket writes, replies included, go through the hub's write pumps so
// frames never interleave on a connection.
type Handlers struct {
	rooms    *rooms.Module
	registry *identity.Registry
	hub      *broadcast.Hub
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandlers creates a handlers instance.
func NewHandlers(roomsModule *rooms.Module, registry *identity.Registry, hub *broadcast.Hub) *Handlers {
	return &Handlers{
		rooms:    roomsModule,
		registry: registry,
		hub:      hub,
		validate: validator.New(),
		logger:   slog.Default(),
	}
}

// HandleWebSocket owns one connection: register with the hub, pump
// inbound frames through the dispatcher, and on transport loss start
// the grace-period clock instead of purging outright.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	connID := uuid.NewString()
	h.hub.Register(connID, c)

	defer func() {
		h.hub.Unregister(connID)
		h.registry.ScheduleReap(connID)
		h.logger.Info("Connection closed", "connID", connID)
	}()

	h.logger.Info("Connection opened", "connID", connID)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("Read failed", "connID", connID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(connID, "Invalid message format")
			continue
		}

		h.dispatch(connID, frame)
	}
}

func (h *Handlers) dispatch(connID string, frame inboundFrame) {
	switch frame.Event {
	case "authenticate":
		h.handleAuthenticate(connID, frame.Data)
	case "register":
		h.handleRegister(connID, frame.Data)
	case "get-rooms":
		h.handleGetRooms(connID)
	case "createRoom":
		h.handleCreateRoom(connID, frame.Data)
	case "join-room":
		h.handleJoinRoom(connID, frame.Data)
	case "leave-room":
		h.handleLeaveRoom(connID, frame.Data)
	case "sendMessage":
		h.handleSendMessage(connID, frame.Data)
	case "sendFile":
		h.handleSendFile(connID, frame.Data)
	case "clearChat":
		h.handleClearChat(connID, frame.Data)
	case "deleteRoom":
		h.handleDeleteRoom(connID, frame.Data)
	case "typing":
		// Received but never rebroadcast.
		h.logger.Debug("Typing event ignored", "connID", connID)
	case "logout":
		h.handleLogout(connID)
	default:
		h.sendError(connID, "Unknown event: "+frame.Event)
	}
}

func (h *Handlers) handleAuthenticate(connID string, data json.RawMessage) {
	profile, ok := h.decodeProfile(connID, data)
	if !ok {
		return
	}

	user := h.registry.Authenticate(connID, profile)
	h.hub.Bind(connID, user.ID)
	h.reply(connID, "authenticated", broadcast.AuthenticatedPayload{Success: true})
	h.logger.Info("User authenticated", "connID", connID, "userID", user.ID, "username", user.Username)
}

// handleRegister binds like authenticate and seeds the client with the
// current room directory.
func (h *Handlers) handleRegister(connID string, data json.RawMessage) {
	profile, ok := h.decodeProfile(connID, data)
	if !ok {
		return
	}

	user := h.registry.Authenticate(connID, profile)
	h.hub.Bind(connID, user.ID)
	h.reply(connID, "rooms-list", h.rooms.ListRooms())
	h.logger.Info("User registered", "connID", connID, "userID", user.ID)
}

func (h *Handlers) decodeProfile(connID string, data json.RawMessage) (identity.Profile, bool) {
	var profile identity.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		h.sendError(connID, "Invalid authenticate payload")
		return identity.Profile{}, false
	}
	if err := h.validate.Struct(profile); err != nil {
		h.sendError(connID, "id and username are required")
		return identity.Profile{}, false
	}
	return profile, true
}

func (h *Handlers) handleGetRooms(connID string) {
	h.reply(connID, "rooms-list", h.rooms.ListRooms())
}

func (h *Handlers) handleCreateRoom(connID string, data json.RawMessage) {
	user, ok := h.registry.Lookup(connID)
	if !ok {
		h.sendError(connID, "Not authenticated")
		return
	}

	var payload createRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(connID, "Invalid createRoom payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		h.sendError(connID, "Room name is required")
		return
	}

	summary := h.rooms.CreateRoom(payload.Name, user.ID)
	h.reply(connID, "roomCreated", roomCreatedPayload{ID: summary.ID, Name: summary.Name})
}

func (h *Handlers) handleJoinRoom(connID string, data json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(connID, "Invalid join-room payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		h.sendError(connID, "roomId and userId are required")
		return
	}

	username := payload.UserID
	if user, ok := h.registry.LookupUser(payload.UserID); ok {
		username = user.Username
	}

	snapshot, history, err := h.rooms.JoinRoom(payload.RoomID, payload.UserID, username)
	if err != nil {
		h.sendError(connID, "Room not found")
		return
	}

	h.reply(connID, "room-joined", roomJoinedPayload{Room: snapshot, Messages: history})
}

func (h *Handlers) handleLeaveRoom(connID string, data json.RawMessage) {
	var payload leaveRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(connID, "Invalid leave-room payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		h.sendError(connID, "roomId and userId are required")
		return
	}

	username := payload.UserID
	if user, ok := h.registry.LookupUser(payload.UserID); ok {
		username = user.Username
	}

	h.rooms.LeaveRoom(payload.RoomID, payload.UserID, username)
}

func (h *Handlers) handleSendMessage(connID string, data json.RawMessage) {
	user, ok := h.registry.Lookup(connID)
	if !ok {
		h.sendError(connID, "Not authenticated")
		return
	}

	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(connID, "Invalid sendMessage payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		h.sendError(connID, "content and roomId are required")
		return
	}

	msg := chat.Message{
		SenderID:   user.ID,
		SenderName: user.Username,
		Avatar:     user.AvatarColor,
		Content:    payload.Content,
	}
	if err := h.rooms.SendMessage(payload.RoomID, msg); err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			h.sendError(connID, "Room not found")
			return
		}
		h.sendError(connID, err.Error())
	}
}

func (h *Handlers) handleSendFile(connID string, data json.RawMessage) {
	user, ok := h.registry.Lookup(connID)
	if !ok {
		h.sendError(connID, "Not authenticated")
		return
	}

	var payload sendFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(connID, "Invalid sendFile payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		h.sendError(connID, "roomId, fileUrl and fileName are required")
		return
	}

	msg := chat.Message{
		SenderID:   user.ID,
		SenderName: user.Username,
		Avatar:     user.AvatarColor,
		Kind:       chat.KindFile,
		FileURL:    payload.FileURL,
		FileName:   payload.FileName,
		FileSize:   payload.FileSize,
	}
	if err := h.rooms.SendMessage(payload.RoomID, msg); err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			h.sendError(connID, "Room not found")
			return
		}
		h.sendError(connID, err.Error())
	}
}

func (h *Handlers) handleClearChat(connID string, data json.RawMessage) {
	user, ok := h.registry.Lookup(connID)
	if !ok {
		h.sendError(connID, "Not authenticated")
		return
	}

	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		h.sendError(connID, "Invalid clearChat payload")
		return
	}

	if err := h.rooms.ClearChat(roomID, user.ID); err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomNotFound):
			h.sendError(connID, "Room not found")
		case errors.Is(err, chat.ErrNotMember):
			h.sendError(connID, "Not a member of this room")
		default:
			h.sendError(connID, err.Error())
		}
	}
}

func (h *Handlers) handleDeleteRoom(connID string, data json.RawMessage) {
	user, ok := h.registry.Lookup(connID)
	if !ok {
		h.sendError(connID, "Not authenticated")
		return
	}

	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		h.sendError(connID, "Invalid deleteRoom payload")
		return
	}

	if err := h.rooms.DeleteRoom(roomID, user.ID); err != nil {
		switch {
		case errors.Is(err, chat.ErrRoomNotFound):
			h.sendError(connID, "Room not found")
		case errors.Is(err, chat.ErrPermissionDenied):
			h.sendError(connID, "Only room creator can delete this room")
		default:
			h.sendError(connID, err.Error())
		}
	}
}

// handleLogout purges immediately: the grace period only covers
// accidental transport loss, not an explicit goodbye.
func (h *Handlers) handleLogout(connID string) {
	h.registry.PurgeNow(connID)
	h.logger.Info("User logged out", "connID", connID)
}

func (h *Handlers) reply(connID, event string, data any) {
	frame, err := broadcast.MarshalFrame(event, data)
	if err != nil {
		h.logger.Error("Failed to marshal reply", "event", event, "error", err)
		return
	}
	h.hub.SendToConn(connID, frame)
}

func (h *Handlers) sendError(connID, message string) {
	h.reply(connID, "error", broadcast.ErrorPayload{Message: message})
}
