package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h *Hub) (*httptest.Server, chan *Client) {
	t.Helper()
	registered := make(chan *Client, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.Register(conn)
		registered <- c
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.Unregister(c)
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, registered
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesAllListeners(t *testing.T) {
	h := New(8)
	srv, registered := newTestServer(t, h)

	a := dial(t, srv)
	b := dial(t, srv)
	<-registered
	<-registered
	require.Equal(t, 2, h.Len())

	frame := []byte{0x10, 0x27, 0x00, 0x40}
	assert.Equal(t, 2, h.BroadcastBinary(frame))
	require.NoError(t, h.BroadcastJSON(map[string]string{"type": "status_update"}))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, kind)
		assert.Equal(t, frame, data)

		kind, data, err = conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.JSONEq(t, `{"type":"status_update"}`, string(data))
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	h := New(8)
	srv, registered := newTestServer(t, h)

	conn := dial(t, srv)
	c := <-registered
	conn.Close()

	assert.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.offer(message{kind: websocket.BinaryMessage, data: []byte{1, 2}}))
	h.Unregister(c)
}

func TestHub_StalledListenerIsUnregistered(t *testing.T) {
	h := New(4)
	h.writeWait = 100 * time.Millisecond
	srv, registered := newTestServer(t, h)

	dial(t, srv) // never reads
	c := <-registered

	frame := make([]byte, 1<<20)
	assert.Eventually(t, func() bool {
		h.BroadcastBinary(frame)
		return h.Len() == 0
	}, 10*time.Second, 10*time.Millisecond)
	assert.False(t, c.offer(message{kind: websocket.BinaryMessage, data: frame}))
}

func TestHub_FullQueueDrops(t *testing.T) {
	h := New(2)
	// no write pump: the queue fills and stays full
	c := &Client{send: make(chan message, 2)}
	h.clients[c] = struct{}{}

	for i := 0; i < 5; i++ {
		h.BroadcastBinary([]byte{byte(i), 0})
	}

	_, dropped := c.Stats()
	assert.Equal(t, uint64(3), dropped)
	assert.Len(t, c.send, 2)
	first := <-c.send
	assert.Equal(t, []byte{0, 0}, first.data)
}

func TestHub_SendJSONSingleClient(t *testing.T) {
	c := &Client{send: make(chan message, 1)}
	require.NoError(t, c.SendJSON(struct {
		Type string `json:"type"`
	}{"recordings"}))
	m := <-c.send
	assert.Equal(t, websocket.TextMessage, m.kind)
	assert.JSONEq(t, `{"type":"recordings"}`, string(m.data))
}
