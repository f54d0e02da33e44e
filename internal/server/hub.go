package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/peerglobe/internal/logging"
)

const (
	clientSendBuffer = 8
	writeTimeout     = 10 * time.Second
)

// Hub fans published dataset payloads out to connected globe renderers.
// Clients that cannot keep up are dropped rather than allowed to stall a
// broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs an empty hub.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
	}
}

// Register adopts a websocket connection: the initial payload (the current
// dataset, if any) is queued first, then the client receives every broadcast
// until it disconnects.
func (h *Hub) Register(ctx context.Context, conn *websocket.Conn, initial []byte) {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info(ctx, "renderer connected", logging.Int("clients", total))

	go h.writePump(ctx, c)
	go h.readPump(ctx, c)
}

// Broadcast queues the payload for every connected client. Clients with a
// full send buffer are disconnected.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount reports the number of connected renderers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump drains the client's send channel onto the wire. It owns all
// writes to the connection.
func (h *Hub) writePump(ctx context.Context, c *client) {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(c)
			return
		}
	}

	// Channel closed: the hub dropped us. Tell the client before hanging up.
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// readPump discards inbound messages; its job is to notice the peer going
// away and unregister the client.
func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			h.log.Debug(ctx, "renderer disconnected")
			return
		}
	}
}
