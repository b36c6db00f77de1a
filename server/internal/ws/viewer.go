package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/server/internal/coordinator"
)

// ServeViewer upgrades the request to a viewer stream. When the "session"
// query parameter is set the viewer is subscribed immediately; otherwise the
// stream stays idle until a viewer-ready frame names a key. Blocks until the
// connection closes.
func (h *Hub) ServeViewer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.upgrade(w, r, roleViewer)
	if !ok {
		return
	}
	defer h.unregister(c)

	v := &viewerConn{coord: h.coord, c: c}
	defer v.close()

	if key := r.URL.Query().Get("session"); key != "" {
		v.subscribe(key)
	}

	go c.writePump()
	c.readPump(v.handleFrame)
}

// viewerConn tracks the subscription currently feeding one viewer socket.
type viewerConn struct {
	coord *coordinator.Coordinator
	c     *client

	mu     sync.Mutex
	sub    *coordinator.Subscription
	closed bool
}

// subscribe points the viewer at key. Asking for the key it already follows
// queues a fresh backfill instead.
func (v *viewerConn) subscribe(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	if v.sub != nil {
		if v.sub.Key == key && v.coord.Backfill(v.sub) {
			return
		}
		v.coord.Unsubscribe(v.sub)
	}
	v.sub = v.coord.Subscribe(key)
	go v.forward(v.sub)

	slog.Debug("ws: viewer subscribed", "session", key, "subscription", v.sub.ID)
}

// forward copies sub's queue onto the socket. If sub ends while it is still
// the current subscription the viewer fell behind, and the socket is closed so
// the viewer reconnects and backfills.
func (v *viewerConn) forward(sub *coordinator.Subscription) {
	for msg := range sub.C() {
		if !v.c.Send(msg) {
			break
		}
	}

	v.mu.Lock()
	current := v.sub == sub && !v.closed
	v.mu.Unlock()
	if current {
		slog.Info("ws: viewer dropped", "session", sub.Key, "subscription", sub.ID)
		v.c.shutdown()
	}
}

func (v *viewerConn) handleFrame(data []byte) {
	typ, err := types.PeekType(data)
	if err != nil {
		slog.Debug("ws: ignoring malformed viewer frame", "err", err)
		return
	}
	if typ != types.TypeViewerReady {
		slog.Debug("ws: ignoring viewer frame", "type", typ)
		return
	}

	var ready types.ViewerReady
	if err := json.Unmarshal(data, &ready); err != nil {
		slog.Debug("ws: ignoring malformed viewer-ready", "err", err)
		return
	}

	key := ready.SessionKey
	if key == "" {
		v.mu.Lock()
		if v.sub != nil {
			key = v.sub.Key
		}
		v.mu.Unlock()
	}
	if key == "" {
		return
	}
	v.subscribe(key)
}

func (v *viewerConn) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.sub != nil {
		v.coord.Unsubscribe(v.sub)
	}
}
