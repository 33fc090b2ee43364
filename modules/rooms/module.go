package rooms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"

	"github.com/example/anonchat/domain/chat"
	"github.com/example/anonchat/events"
)

// Module owns the room store and publishes a typed event for every
// committed mutation. opMu serializes mutate-then-publish so broadcast
// order always follows commit order; publishing is a non-blocking
// enqueue to the embedded broker, not an I/O suspension point.
type Module struct {
	opMu     sync.Mutex
	store    *Store
	eventBus mono.EventBus
	logger   types.Logger

	sweepInterval time.Duration
	idleMaxAge    time.Duration
	cancelSweep   context.CancelFunc
	sweepDone     chan struct{}
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the rooms module.
func NewModule(logger types.Logger, sweepInterval, idleMaxAge time.Duration) *Module {
	return &Module{
		store:         NewStore(),
		logger:        logger,
		sweepInterval: sweepInterval,
		idleMaxAge:    idleMaxAge,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "rooms"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
		events.AdminChangedV1.ToBase(),
		events.RoomDeletedV1.ToBase(),
		events.RoomsListV1.ToBase(),
		events.ChatClearedV1.ToBase(),
	}
}

// Start launches the idle-room sweeper.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelSweep = cancel
	m.sweepDone = make(chan struct{})
	go m.runSweeper(ctx)
	m.logger.Info("Rooms module started",
		"sweepInterval", m.sweepInterval, "idleMaxAge", m.idleMaxAge)
	return nil
}

// Stop shuts the sweeper down.
func (m *Module) Stop(_ context.Context) error {
	if m.cancelSweep != nil {
		m.cancelSweep()
		<-m.sweepDone
	}
	m.logger.Info("Rooms module stopped")
	return nil
}

// Health reports the current room count.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms": len(m.store.List()),
		},
	}
}

// Store exposes the underlying store for read paths.
func (m *Module) Store() *Store {
	return m.store
}

// CreateRoom creates a room owned by creatorID and refreshes the
// global directory.
func (m *Module) CreateRoom(name, creatorID string) chat.RoomSummary {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	summary := m.store.CreateRoom(name, creatorID)
	m.publishRoomsList()
	m.logger.Info("Room created", "roomID", summary.ID, "creator", creatorID)
	return summary
}

// JoinRoom adds the user and returns the snapshot plus history for the
// room-joined reply. Existing members are notified of the new count.
func (m *Module) JoinRoom(roomID, userID, username string) (chat.RoomSnapshot, []chat.Message, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	snapshot, history, members, err := m.store.Join(roomID, userID)
	if err != nil {
		return chat.RoomSnapshot{}, nil, err
	}

	// A re-join by an existing member leaves membership untouched but
	// still announces; clients treat user-joined as a count refresh.
	if err := events.UserJoinedV1.Publish(m.eventBus, events.UserJoinedEvent{
		RoomID:        roomID,
		Username:      username,
		Participants:  snapshot.Participants,
		MemberIDs:     members,
		ExcludeUserID: userID,
	}, nil); err != nil {
		m.logger.Warn("Failed to publish UserJoined event", "error", err)
	}
	m.publishRoomsList()
	return snapshot, history, nil
}

// LeaveRoom removes the user and fans out whichever notice the
// departure produced: user-left, new-admin, or a global room-deleted.
func (m *Module) LeaveRoom(roomID, userID, username string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.leave(roomID, userID, username)
	m.publishRoomsList()
}

// RemoveUserEverywhere is the purge cascade used by logout and the
// disconnect reaper. Each room goes through the same leave path, so
// succession and empty-room deletion fire exactly as they would on an
// explicit leave; the directory refresh is aggregated into one event.
func (m *Module) RemoveUserEverywhere(userID, username string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	for _, roomID := range m.store.RoomsOf(userID) {
		m.leave(roomID, userID, username)
	}
	m.publishRoomsList()
}

func (m *Module) leave(roomID, userID, username string) {
	res, ok := m.store.Leave(roomID, userID)
	if !ok {
		return
	}

	if res.Deleted {
		if err := events.RoomDeletedV1.Publish(m.eventBus, events.RoomDeletedEvent{
			RoomID:  roomID,
			Message: fmt.Sprintf("Room %q deleted (no users left)", res.RoomName),
		}, nil); err != nil {
			m.logger.Warn("Failed to publish RoomDeleted event", "error", err)
		}
		m.logger.Info("Room deleted, last member left", "roomID", roomID)
		return
	}

	if res.NewAdmin != "" {
		if err := events.AdminChangedV1.Publish(m.eventBus, events.AdminChangedEvent{
			RoomID:    roomID,
			NewAdmin:  res.NewAdmin,
			MemberIDs: res.MemberIDs,
		}, nil); err != nil {
			m.logger.Warn("Failed to publish AdminChanged event", "error", err)
		}
		m.logger.Info("Room admin changed", "roomID", roomID, "newAdmin", res.NewAdmin)
	}

	if err := events.UserLeftV1.Publish(m.eventBus, events.UserLeftEvent{
		RoomID:       roomID,
		Username:     username,
		Participants: res.Participants,
		MemberIDs:    res.MemberIDs,
	}, nil); err != nil {
		m.logger.Warn("Failed to publish UserLeft event", "error", err)
	}
}

// DeleteRoom removes the room on behalf of its creator.
func (m *Module) DeleteRoom(roomID, requesterID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	name, err := m.store.Delete(roomID, requesterID)
	if err != nil {
		return err
	}

	if err := events.RoomDeletedV1.Publish(m.eventBus, events.RoomDeletedEvent{
		RoomID:  roomID,
		Message: fmt.Sprintf("Room %q deleted", name),
	}, nil); err != nil {
		m.logger.Warn("Failed to publish RoomDeleted event", "error", err)
	}
	m.publishRoomsList()
	m.logger.Info("Room deleted by creator", "roomID", roomID, "creator", requesterID)
	return nil
}

// SendMessage stamps, stores and fans out a message. Kind, content and
// the file descriptor fields come filled in from the caller.
func (m *Module) SendMessage(roomID string, msg chat.Message) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	msg.ID = uuid.NewString()
	msg.RoomID = roomID
	msg.Timestamp = time.Now()

	members, err := m.store.Append(roomID, msg)
	if err != nil {
		return err
	}

	if err := events.MessageSentV1.Publish(m.eventBus, events.MessageSentEvent{
		Message:   msg,
		MemberIDs: members,
	}, nil); err != nil {
		m.logger.Warn("Failed to publish MessageSent event", "error", err)
	}
	return nil
}

// ClearChat empties the room history on behalf of a current member.
func (m *Module) ClearChat(roomID, requesterID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	members, err := m.store.Clear(roomID, requesterID)
	if err != nil {
		return err
	}

	if err := events.ChatClearedV1.Publish(m.eventBus, events.ChatClearedEvent{
		RoomID:    roomID,
		MemberIDs: members,
	}, nil); err != nil {
		m.logger.Warn("Failed to publish ChatCleared event", "error", err)
	}
	m.logger.Info("Chat cleared", "roomID", roomID, "by", requesterID)
	return nil
}

// ListRooms returns the directory, newest first.
func (m *Module) ListRooms() []chat.RoomSummary {
	return m.store.List()
}

// RoomSummary returns one room's summary.
func (m *Module) RoomSummary(roomID string) (chat.RoomSummary, bool) {
	return m.store.Summary(roomID)
}

func (m *Module) publishRoomsList() {
	if err := events.RoomsListV1.Publish(m.eventBus, events.RoomsListEvent{Rooms: m.store.List()}, nil); err != nil {
		m.logger.Warn("Failed to publish RoomsList event", "error", err)
	}
}
