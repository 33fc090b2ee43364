package identity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// purgeRecorder captures purge cascade invocations.
type purgeRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (p *purgeRecorder) purge(userID, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, userID)
}

func (p *purgeRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestAuthenticateAndLookup(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(time.Second, rec.purge)

	user := r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice", Avatar: "#ff0000"})
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "#ff0000", user.AvatarColor)
	assert.False(t, user.JoinedAt.IsZero())

	got, ok := r.Lookup("conn-1")
	require.True(t, ok)
	assert.Equal(t, "u1", got.ID)

	got, ok = r.LookupUser("u1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	_, ok = r.Lookup("conn-unknown")
	assert.False(t, ok)
}

func TestReauthenticateKeepsJoinedAt(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(time.Second, rec.purge)

	first := r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	second := r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice the great"})

	assert.Equal(t, first.JoinedAt, second.JoinedAt)
	assert.Equal(t, "alice the great", second.Username)
	assert.Equal(t, 1, r.UserCount())
}

func TestRebindConnectionReplacesIdentity(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(time.Second, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.Authenticate("conn-1", Profile{ID: "u2", Username: "bob"})

	got, ok := r.Lookup("conn-1")
	require.True(t, ok)
	assert.Equal(t, "u2", got.ID)

	// The displaced user survives but is no longer bound to the conn.
	displaced, ok := r.LookupUser("u1")
	require.True(t, ok)
	assert.Empty(t, displaced.ConnectionID)
}

func TestUserMovingToNewConnection(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(time.Second, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.Authenticate("conn-2", Profile{ID: "u1", Username: "alice"})

	_, ok := r.Lookup("conn-1")
	assert.False(t, ok)

	got, ok := r.Lookup("conn-2")
	require.True(t, ok)
	assert.Equal(t, "u1", got.ID)
}

func TestUnbindRemovesBindingOnly(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(time.Second, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.Unbind("conn-1")

	_, ok := r.Lookup("conn-1")
	assert.False(t, ok)

	// The identity survives; only the connection reference is gone.
	got, ok := r.LookupUser("u1")
	require.True(t, ok)
	assert.Empty(t, got.ConnectionID)
	assert.Equal(t, 1, r.UserCount())
	assert.Equal(t, 0, rec.count())

	// Unbinding an unknown connection is a no-op.
	r.Unbind("conn-unknown")
	assert.Equal(t, 1, r.UserCount())
}

func TestScheduleReapPurgesAfterGrace(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(20*time.Millisecond, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.ScheduleReap("conn-1")

	require.Eventually(t, func() bool {
		return rec.count() == 1
	}, time.Second, 5*time.Millisecond)

	_, ok := r.LookupUser("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.UserCount())

	// The timer must not fire a second time.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestReconnectCancelsPendingReap(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(30*time.Millisecond, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.ScheduleReap("conn-1")
	r.Authenticate("conn-2", Profile{ID: "u1", Username: "alice"})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	got, ok := r.LookupUser("u1")
	require.True(t, ok)
	assert.Equal(t, "conn-2", got.ConnectionID)
}

func TestScheduleReapIgnoresStaleConnection(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(20*time.Millisecond, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.Authenticate("conn-2", Profile{ID: "u1", Username: "alice"})

	// conn-1 is no longer the user's connection; its reap is a no-op.
	r.ScheduleReap("conn-1")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	_, ok := r.LookupUser("u1")
	assert.True(t, ok)
}

func TestPurgeNowBypassesGrace(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(time.Hour, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.PurgeNow("conn-1")

	assert.Equal(t, 1, rec.count())
	_, ok := r.LookupUser("u1")
	assert.False(t, ok)
	_, ok = r.Lookup("conn-1")
	assert.False(t, ok)
}

func TestCancelAllStopsPendingReaps(t *testing.T) {
	rec := &purgeRecorder{}
	r := NewRegistry(20*time.Millisecond, rec.purge)

	r.Authenticate("conn-1", Profile{ID: "u1", Username: "alice"})
	r.Authenticate("conn-2", Profile{ID: "u2", Username: "bob"})
	r.ScheduleReap("conn-1")
	r.ScheduleReap("conn-2")
	r.CancelAll()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 2, r.UserCount())
}
