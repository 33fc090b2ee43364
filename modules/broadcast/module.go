package broadcast

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/anonchat/events"
)

// Module consumes the room events and fans the matching wire frames
// out to connected clients. Delivery is best-effort to live sockets;
// the only replay a client ever gets is the snapshot at join time.
type Module struct {
	hub       *Hub
	logger    types.Logger
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the broadcast module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start runs the hub.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop shuts the hub down and waits for it.
func (m *Module) Stop(_ context.Context) error {
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Broadcast module stopped")
	return nil
}

// Health reports the live connection count.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// Hub exposes the hub for the connection server to register and bind
// clients and to send request-scoped replies.
func (m *Module) Hub() *Hub {
	return m.hub
}

// RegisterEventConsumers subscribes to every room event.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageSentV1, m.handleMessageSent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserJoinedV1, m.handleUserJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserLeftV1, m.handleUserLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.AdminChangedV1, m.handleAdminChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register AdminChanged consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomDeletedV1, m.handleRoomDeleted, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomsListV1, m.handleRoomsList, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomsList consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.ChatClearedV1, m.handleChatCleared, m,
	); err != nil {
		return fmt.Errorf("failed to register ChatCleared consumer: %w", err)
	}

	m.logger.Info("Registered broadcast event consumers")
	return nil
}

func (m *Module) handleMessageSent(_ context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("newMessage", event.Message)
	if err != nil {
		m.logger.Error("Failed to marshal newMessage frame", "error", err)
		return nil
	}
	m.hub.SendToUsers(event.MemberIDs, "", data)
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("user-joined", UserJoinedPayload{
		Username:     event.Username,
		Participants: event.Participants,
	})
	if err != nil {
		m.logger.Error("Failed to marshal user-joined frame", "error", err)
		return nil
	}
	m.hub.SendToUsers(event.MemberIDs, event.ExcludeUserID, data)
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("user-left", UserLeftPayload{
		Username:     event.Username,
		Participants: event.Participants,
	})
	if err != nil {
		m.logger.Error("Failed to marshal user-left frame", "error", err)
		return nil
	}
	m.hub.SendToUsers(event.MemberIDs, "", data)
	return nil
}

func (m *Module) handleAdminChanged(_ context.Context, event events.AdminChangedEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("new-admin", NewAdminPayload{
		RoomID:   event.RoomID,
		NewAdmin: event.NewAdmin,
	})
	if err != nil {
		m.logger.Error("Failed to marshal new-admin frame", "error", err)
		return nil
	}
	m.hub.SendToUsers(event.MemberIDs, "", data)
	return nil
}

func (m *Module) handleRoomDeleted(_ context.Context, event events.RoomDeletedEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("room-deleted", RoomDeletedPayload{
		RoomID:  event.RoomID,
		Message: event.Message,
	})
	if err != nil {
		m.logger.Error("Failed to marshal room-deleted frame", "error", err)
		return nil
	}
	m.hub.SendToAll(data)
	return nil
}

func (m *Module) handleRoomsList(_ context.Context, event events.RoomsListEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("rooms-list", event.Rooms)
	if err != nil {
		m.logger.Error("Failed to marshal rooms-list frame", "error", err)
		return nil
	}
	m.hub.SendToAll(data)
	return nil
}

func (m *Module) handleChatCleared(_ context.Context, event events.ChatClearedEvent, _ *mono.Msg) error {
	data, err := MarshalFrame("chatCleared", nil)
	if err != nil {
		m.logger.Error("Failed to marshal chatCleared frame", "error", err)
		return nil
	}
	m.hub.SendToUsers(event.MemberIDs, "", data)
	return nil
}
