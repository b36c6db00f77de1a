package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkscore/linkscore/server/internal/coordinator"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound frame. Observer batches carry
	// every link on a results page.
	maxMessageSize = 1 << 20

	// DefaultSendBuffer is the per-client outgoing message buffer depth.
	DefaultSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Observers connect from arbitrary search result origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type role int

const (
	roleObserver role = iota
	roleViewer
)

func (r role) String() string {
	if r == roleObserver {
		return "observer"
	}
	return "viewer"
}

// Hub owns every open observer and viewer connection and routes their frames
// to the coordinator.
type Hub struct {
	coord   *coordinator.Coordinator
	sendBuf int

	mu      sync.RWMutex
	clients map[*client]role
}

// client represents one connected WebSocket peer.
type client struct {
	conn *websocket.Conn
	send chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Hub that routes frames to coord. sendBuf <= 0 uses
// DefaultSendBuffer.
func New(coord *coordinator.Coordinator, sendBuf int) *Hub {
	if sendBuf <= 0 {
		sendBuf = DefaultSendBuffer
	}
	return &Hub{
		coord:   coord,
		sendBuf: sendBuf,
		clients: make(map[*client]role),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connections returns the number of connected observers and viewers.
func (h *Hub) Connections() (observers, viewers int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.clients {
		if r == roleObserver {
			observers++
		} else {
			viewers++
		}
	}
	return observers, viewers
}

// --- internal ---------------------------------------------------------------

func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request, rl role) (*client, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "role", rl.String(), "err", err)
		return nil, false
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, h.sendBuf),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = rl
	h.mu.Unlock()
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.shutdown()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
		delete(h.clients, c)
	}
}

// Send encodes msg as JSON and queues it without blocking. A client whose
// buffer is full is disconnected. Send implements coordinator.Sink.
func (c *client) Send(msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: encode frame", "err", err)
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		// Client's outgoing buffer is full. Disconnect it.
		c.shutdown()
		return false
	}
}

func (c *client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection and passes text frames to handle.
// Blocks until the connection closes.
func (c *client) readPump(handle func([]byte)) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage {
			handle(data)
		}
	}
}
