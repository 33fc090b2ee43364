package identity

import (
	"context"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/anonchat/modules/rooms"
)

// Module wraps the identity registry and wires its purge cascade into
// the rooms module.
type Module struct {
	registry *Registry
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the identity module. A reaped or logged-out user is
// removed from every room through the rooms module, which handles
// succession, empty-room deletion and the directory refresh.
func NewModule(logger types.Logger, grace time.Duration, roomsModule *rooms.Module) *Module {
	m := &Module{logger: logger}
	m.registry = NewRegistry(grace, func(userID, username string) {
		logger.Info("Purging user", "userID", userID)
		roomsModule.RemoveUserEverywhere(userID, username)
	})
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "identity"
}

// Start is a no-op; timers are created on demand.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Identity module started")
	return nil
}

// Stop cancels all pending reap timers.
func (m *Module) Stop(_ context.Context) error {
	m.registry.CancelAll()
	m.logger.Info("Identity module stopped")
	return nil
}

// Health reports the registered identity count.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"users": m.registry.UserCount(),
		},
	}
}

// Registry exposes the registry to the connection handlers.
func (m *Module) Registry() *Registry {
	return m.registry
}
