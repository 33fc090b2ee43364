package wsserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anonchat/domain/chat"
	"github.com/example/anonchat/modules/broadcast"
	"github.com/example/anonchat/modules/identity"
	"github.com/example/anonchat/modules/rooms"
)

const testConnID = "conn-test"

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// fakeConn records everything written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeConn) at(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[i]
}

func newTestHandlers(t *testing.T) (*Handlers, *fakeConn) {
	hub := broadcast.NewHub(&mockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Wait()
	})

	roomsModule := rooms.NewModule(&mockLogger{}, time.Minute, time.Hour)
	registry := identity.NewRegistry(time.Hour, func(userID, username string) {})
	h := NewHandlers(roomsModule, registry, hub)

	conn := &fakeConn{}
	hub.Register(testConnID, conn)
	return h, conn
}

// waitFrame blocks until the connection has received at least n frames
// and returns the nth one.
func waitFrame(t *testing.T, conn *fakeConn, n int) []byte {
	t.Helper()
	require.Eventually(t, func() bool {
		return conn.count() >= n
	}, time.Second, 5*time.Millisecond)
	return conn.at(n - 1)
}

func event(name, data string) inboundFrame {
	return inboundFrame{Event: name, Data: json.RawMessage(data)}
}

func authenticated(t *testing.T, h *Handlers, conn *fakeConn) {
	t.Helper()
	h.dispatch(testConnID, event("authenticate", `{"id":"u1","username":"alice","avatar":"#ff0000"}`))
	assert.JSONEq(t, `{"event":"authenticated","data":{"success":true}}`, string(waitFrame(t, conn, 1)))
}

func TestDispatchUnknownEvent(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("dance", `{}`))

	assert.JSONEq(t,
		`{"event":"error","data":{"message":"Unknown event: dance"}}`,
		string(waitFrame(t, conn, 1)))
}

func TestDispatchMalformedPayload(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("join-room", `42`))

	assert.JSONEq(t,
		`{"event":"error","data":{"message":"Invalid join-room payload"}}`,
		string(waitFrame(t, conn, 1)))
}

func TestDispatchValidationFailure(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("join-room", `{"roomId":"r1"}`))

	assert.JSONEq(t,
		`{"event":"error","data":{"message":"roomId and userId are required"}}`,
		string(waitFrame(t, conn, 1)))
}

func TestDispatchRequiresAuthentication(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("sendMessage", `{"content":"hi","roomId":"r1"}`))
	h.dispatch(testConnID, event("createRoom", `{"name":"general"}`))
	h.dispatch(testConnID, event("clearChat", `"r1"`))
	h.dispatch(testConnID, event("deleteRoom", `"r1"`))

	for i := 1; i <= 4; i++ {
		assert.JSONEq(t,
			`{"event":"error","data":{"message":"Not authenticated"}}`,
			string(waitFrame(t, conn, i)))
	}
}

func TestAuthenticateBindsAndAcknowledges(t *testing.T) {
	h, conn := newTestHandlers(t)

	authenticated(t, h, conn)

	user, ok := h.registry.Lookup(testConnID)
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "alice", user.Username)
}

func TestAuthenticateRejectsIncompleteProfile(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("authenticate", `{"id":"u1"}`))

	assert.JSONEq(t,
		`{"event":"error","data":{"message":"id and username are required"}}`,
		string(waitFrame(t, conn, 1)))
}

func TestGetRoomsReply(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("get-rooms", ``))

	assert.JSONEq(t,
		`{"event":"rooms-list","data":[]}`,
		string(waitFrame(t, conn, 1)))
}

func TestJoinUnknownRoomReportsError(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("join-room", `{"roomId":"missing","userId":"u1"}`))

	assert.JSONEq(t,
		`{"event":"error","data":{"message":"Room not found"}}`,
		string(waitFrame(t, conn, 1)))
}

func TestClearChatAndDeleteRoomErrors(t *testing.T) {
	h, conn := newTestHandlers(t)
	authenticated(t, h, conn)

	// Both events carry a bare string room id on the wire.
	h.dispatch(testConnID, event("clearChat", `{"roomId":"r1"}`))
	assert.JSONEq(t,
		`{"event":"error","data":{"message":"Invalid clearChat payload"}}`,
		string(waitFrame(t, conn, 2)))

	h.dispatch(testConnID, event("clearChat", `"missing"`))
	assert.JSONEq(t,
		`{"event":"error","data":{"message":"Room not found"}}`,
		string(waitFrame(t, conn, 3)))

	h.dispatch(testConnID, event("deleteRoom", `"missing"`))
	assert.JSONEq(t,
		`{"event":"error","data":{"message":"Room not found"}}`,
		string(waitFrame(t, conn, 4)))
}

func TestTypingIsSilent(t *testing.T) {
	h, conn := newTestHandlers(t)

	h.dispatch(testConnID, event("typing", `{"roomId":"r1"}`))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, conn.count())
}

func TestLogoutPurgesImmediately(t *testing.T) {
	h, conn := newTestHandlers(t)
	authenticated(t, h, conn)

	h.dispatch(testConnID, event("logout", ``))

	_, ok := h.registry.LookupUser("u1")
	assert.False(t, ok)
}

// The newMessage payload field names are the compatibility surface;
// text messages must not carry a type discriminator, file messages
// carry type:"file" plus the descriptor fields.
func TestNewMessageFrameFieldNames(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	text := chat.Message{
		ID:         "m1",
		RoomID:     "r1",
		SenderID:   "u1",
		SenderName: "alice",
		Avatar:     "#ff0000",
		Content:    "hello",
		Timestamp:  ts,
	}
	data, err := broadcast.MarshalFrame("newMessage", text)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "newMessage",
		"data": {
			"id": "m1",
			"roomId": "r1",
			"userId": "u1",
			"username": "alice",
			"avatar": "#ff0000",
			"content": "hello",
			"timestamp": "2026-03-01T12:00:00Z"
		}
	}`, string(data))

	file := chat.Message{
		ID:         "m2",
		RoomID:     "r1",
		SenderID:   "u1",
		SenderName: "alice",
		Avatar:     "#ff0000",
		Kind:       chat.KindFile,
		FileURL:    "https://files.example/abc",
		FileName:   "notes.pdf",
		FileSize:   2048,
		Timestamp:  ts,
	}
	data, err = broadcast.MarshalFrame("newMessage", file)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "newMessage",
		"data": {
			"id": "m2",
			"roomId": "r1",
			"userId": "u1",
			"username": "alice",
			"avatar": "#ff0000",
			"type": "file",
			"fileUrl": "https://files.example/abc",
			"fileName": "notes.pdf",
			"fileSize": 2048,
			"timestamp": "2026-03-01T12:00:00Z"
		}
	}`, string(data))
}
