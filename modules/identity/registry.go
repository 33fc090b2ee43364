package identity

import (
	"sync"
	"time"

	"github.com/example/anonchat/domain/chat"
)

// PurgeFunc is the cascade invoked when a user is removed for good:
// it takes the user out of every room (with whatever succession or
// room-deletion side effects that produces) and refreshes the global
// directory.
type PurgeFunc func(userID, username string)

// reapToken is the cancelable handle for one pending purge. The
// connection id captured at schedule time is re-checked when the timer
// fires, so a reconnect invalidates the purge deterministically.
type reapToken struct {
	connID string
	timer  *time.Timer
}

// Registry binds live connections to user profiles and owns the
// disconnect grace-period state machine:
//
//	Connected -> Disconnected(pending) -> Reconnected | Reaped
//
// A connection has at most one bound identity; rebinding overwrites.
type Registry struct {
	mu      sync.Mutex
	users   map[string]*chat.User // userID -> user
	byConn  map[string]string     // connID -> userID
	pending map[string]*reapToken // userID -> pending purge

	grace time.Duration
	purge PurgeFunc
}

// NewRegistry creates a registry with the given grace period and purge
// cascade.
func NewRegistry(grace time.Duration, purge PurgeFunc) *Registry {
	return &Registry{
		users:   make(map[string]*chat.User),
		byConn:  make(map[string]string),
		pending: make(map[string]*reapToken),
		grace:   grace,
		purge:   purge,
	}
}

// Profile is the client-supplied identity payload.
type Profile struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required,max=50"`
	Avatar   string `json:"avatar"`
}

// Authenticate binds the connection to the profile. Re-authenticating
// the same connection overwrites the prior binding without error, and
// a user id reappearing on a new connection cancels any pending reap.
func (r *Registry) Authenticate(connID string, profile Profile) chat.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reconnect inside the grace window: drop the pending purge.
	if tok, ok := r.pending[profile.ID]; ok {
		tok.timer.Stop()
		delete(r.pending, profile.ID)
	}

	// A connection holds one identity at a time; rebinding replaces it.
	if prevUserID, ok := r.byConn[connID]; ok && prevUserID != profile.ID {
		if prev, ok := r.users[prevUserID]; ok && prev.ConnectionID == connID {
			prev.ConnectionID = ""
		}
	}

	u, ok := r.users[profile.ID]
	if !ok {
		u = &chat.User{
			ID:       profile.ID,
			JoinedAt: time.Now(),
		}
		r.users[profile.ID] = u
	}
	u.Username = profile.Username
	u.AvatarColor = profile.Avatar

	// The user may still be bound to a dead connection; replace it.
	if u.ConnectionID != "" && u.ConnectionID != connID {
		delete(r.byConn, u.ConnectionID)
	}
	u.ConnectionID = connID
	r.byConn[connID] = profile.ID

	return *u
}

// Lookup resolves a connection to its bound user.
func (r *Registry) Lookup(connID string) (chat.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return chat.User{}, false
	}
	u, ok := r.users[userID]
	if !ok {
		return chat.User{}, false
	}
	return *u, true
}

// LookupUser resolves a user id directly.
func (r *Registry) LookupUser(userID string) (chat.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return chat.User{}, false
	}
	return *u, true
}

// Unbind removes the connection binding only; the user stays
// registered. Room membership is the store's concern and is handled by
// the disconnect/logout paths.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(connID)
}

// unbindLocked drops the connID binding and clears the user's back
// reference when it still points at connID. Caller holds r.mu.
func (r *Registry) unbindLocked(connID string) {
	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if u, ok := r.users[userID]; ok && u.ConnectionID == connID {
		u.ConnectionID = ""
	}
}

// ScheduleReap starts the grace timer for the user bound to connID.
// If the same user authenticates a new connection before it fires, the
// purge is a no-op.
func (r *Registry) ScheduleReap(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	u, ok := r.users[userID]
	if !ok || u.ConnectionID != connID {
		return
	}

	if tok, ok := r.pending[userID]; ok {
		tok.timer.Stop()
	}
	tok := &reapToken{connID: connID}
	tok.timer = time.AfterFunc(r.grace, func() {
		r.reap(userID, connID)
	})
	r.pending[userID] = tok
}

// reap fires after the grace period. The purge proceeds only if the
// captured connection id is still the user's current one.
func (r *Registry) reap(userID, connID string) {
	r.mu.Lock()
	tok, ok := r.pending[userID]
	if !ok || tok.connID != connID {
		r.mu.Unlock()
		return
	}
	delete(r.pending, userID)

	u, ok := r.users[userID]
	if !ok || u.ConnectionID != connID {
		r.mu.Unlock()
		return
	}
	username := u.Username
	r.unbindLocked(connID)
	delete(r.users, userID)
	r.mu.Unlock()

	// Cascade outside the registry lock; the room store has its own.
	r.purge(userID, username)
}

// PurgeNow removes the user bound to connID immediately, bypassing the
// grace period. Used by explicit logout.
func (r *Registry) PurgeNow(connID string) {
	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	u, ok := r.users[userID]
	if !ok {
		delete(r.byConn, connID)
		r.mu.Unlock()
		return
	}
	if tok, ok := r.pending[userID]; ok {
		tok.timer.Stop()
		delete(r.pending, userID)
	}
	username := u.Username
	r.unbindLocked(connID)
	delete(r.users, userID)
	r.mu.Unlock()

	r.purge(userID, username)
}

// CancelAll stops every pending reap timer. Shutdown path.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, tok := range r.pending {
		tok.timer.Stop()
		delete(r.pending, userID)
	}
}

// UserCount reports how many identities are currently registered.
func (r *Registry) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
