package broadcast

import (
	"context"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// sendBufferSize bounds each client's outbound queue. A slow or dead
// connection drops frames rather than blocking fan-out.
const sendBufferSize = 64

// Conn is the writable side of a client connection. The concrete type
// is *websocket.Conn; tests substitute their own.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one registered connection with its dedicated write pump.
type Client struct {
	ConnID string
	Conn   Conn
	send   chan []byte
}

func (c *Client) writePump() {
	for data := range c.send {
		_ = c.Conn.WriteMessage(websocket.TextMessage, data)
	}
}

// delivery is one queued fan-out. Recipients nil means every
// connection; otherwise the listed user ids, minus Exclude.
type delivery struct {
	recipients []string
	exclude    string
	data       []byte
}

// Hub tracks live connections and the userID->connection binding, and
// fans frames out to one connection, a recipient list, or everyone.
// Broadcasts flow through one queue so delivery order follows
// submission order.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID -> client
	users   map[string]string  // userID -> connID

	queue  chan delivery
	done   chan struct{}
	logger types.Logger
}

// NewHub creates a hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]string),
		queue:   make(chan delivery, 256),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Run drains the broadcast queue until the context is canceled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case d := <-h.queue:
			h.deliver(d)
		}
	}
}

// Wait blocks until Run has returned.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds a connection and starts its write pump.
func (h *Hub) Register(connID string, conn Conn) {
	c := &Client{ConnID: connID, Conn: conn, send: make(chan []byte, sendBufferSize)}
	go c.writePump()

	h.mu.Lock()
	h.clients[connID] = c
	h.mu.Unlock()

	h.logger.Debug("Client registered", "connID", connID)
}

// Unregister drops a connection and any user binding pointing at it.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		for userID, bound := range h.users {
			if bound == connID {
				delete(h.users, userID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("Client unregistered", "connID", connID)
	}
}

// Bind points a user id at a connection. Rebinding overwrites; a user
// reconnecting inside the grace window lands here with a fresh connID.
func (h *Hub) Bind(connID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return
	}
	h.users[userID] = connID
}

// SendToConn queues a frame for one connection. The lock is held
// through the enqueue so the send channel cannot be closed under us;
// enqueue never blocks.
func (h *Hub) SendToConn(connID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c, ok := h.clients[connID]; ok {
		h.enqueue(c, data)
	}
}

// SendToUsers queues a frame for the listed user ids, skipping
// exclude. Users without a live connection silently miss the frame;
// there is no replay.
func (h *Hub) SendToUsers(userIDs []string, exclude string, data []byte) {
	h.queue <- delivery{recipients: userIDs, exclude: exclude, data: data}
}

// SendToAll queues a frame for every connected client.
func (h *Hub) SendToAll(data []byte) {
	h.queue <- delivery{data: data}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if d.recipients == nil {
		for _, c := range h.clients {
			h.enqueue(c, d.data)
		}
		return
	}

	for _, userID := range d.recipients {
		if userID == d.exclude {
			continue
		}
		connID, ok := h.users[userID]
		if !ok {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			h.enqueue(c, d.data)
		}
	}
}

func (h *Hub) enqueue(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Dropping frame for slow client", "connID", c.ConnID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		close(c.send)
		_ = c.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.users = make(map[string]string)
}
