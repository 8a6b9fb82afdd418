// Package hub fans frames and status messages out to websocket listeners.
// Every listener has its own bounded send queue drained by a write pump;
// a full queue drops the message for that listener only.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 10 * time.Second

type message struct {
	kind int
	data []byte
}

// Client is one connected listener.
type Client struct {
	conn      *websocket.Conn
	send      chan message
	writeWait time.Duration

	mu     sync.Mutex
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Stats returns delivered and dropped message counts.
func (c *Client) Stats() (sent, dropped uint64) {
	return c.sent.Load(), c.dropped.Load()
}

// Conn exposes the underlying connection for the read loop.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) offer(m message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- m:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// SendJSON queues v for this client only.
func (c *Client) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.offer(message{kind: websocket.TextMessage, data: b})
	return nil
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for m := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := c.conn.WriteMessage(m.kind, m.data); err != nil {
			log.Printf("[DEBUG] hub: write to %s: %v", c.conn.RemoteAddr(), err)
			// closing fails the read loop, which unregisters the client and
			// ends the drain
			c.conn.Close()
			for range c.send {
			}
			return
		}
		c.sent.Add(1)
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Hub is the listener registry.
type Hub struct {
	queue     int
	writeWait time.Duration

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates a hub whose clients buffer up to queue messages.
func New(queue int) *Hub {
	if queue < 1 {
		queue = 1
	}
	return &Hub{queue: queue, writeWait: defaultWriteWait, clients: make(map[*Client]struct{})}
}

// Register adds conn and starts its write pump.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan message, h.queue), writeWait: h.writeWait}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	go c.writePump()
	log.Printf("[INFO] hub: listener %s connected (%d total)", conn.RemoteAddr(), n)
	return c
}

// Unregister removes c and stops its write pump. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.shutdown()
	sent, dropped := c.Stats()
	log.Printf("[INFO] hub: listener %s disconnected (%d total), sent %d dropped %d",
		c.conn.RemoteAddr(), n, sent, dropped)
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastBinary offers b to every listener without blocking. b is shared
// and must not be modified afterwards. It returns the number of listeners
// that accepted it.
func (h *Hub) BroadcastBinary(b []byte) int {
	return h.broadcast(message{kind: websocket.BinaryMessage, data: b})
}

// BroadcastJSON encodes v once and offers it to every listener.
func (h *Hub) BroadcastJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.broadcast(message{kind: websocket.TextMessage, data: b})
	return nil
}

func (h *Hub) broadcast(m message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.offer(m) {
			n++
		}
	}
	return n
}
