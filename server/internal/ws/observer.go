package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/linkscore/linkscore/pkg/types"
)

// ServeObserver upgrades the request to a page observer channel bound to the
// session key in the "session" query parameter. Blocks until the connection
// closes.
func (h *Hub) ServeObserver(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("session")
	if key == "" {
		key = uuid.NewString()
	}

	c, ok := h.upgrade(w, r, roleObserver)
	if !ok {
		return
	}
	defer h.unregister(c)

	// channel-open is queued before the channel is registered so it is
	// always the first frame.
	c.Send(types.ChannelOpen{Type: types.TypeChannelOpen, SessionKey: key})
	h.coord.OnChannelOpen(key, c)
	defer h.coord.OnChannelClose(key, c)

	slog.Debug("ws: observer connected", "session", key)

	go c.writePump()
	c.readPump(func(data []byte) { h.handleObserverFrame(key, data) })

	slog.Debug("ws: observer disconnected", "session", key)
}

func (h *Hub) handleObserverFrame(key string, data []byte) {
	typ, err := types.PeekType(data)
	if err != nil {
		slog.Debug("ws: ignoring malformed observer frame", "session", key, "err", err)
		return
	}

	switch typ {
	case types.TypeReport:
		var rep types.Report
		if err := json.Unmarshal(data, &rep); err != nil {
			slog.Debug("ws: ignoring malformed report", "session", key, "err", err)
			return
		}
		h.coord.OnBatchReport(key, rep.Candidates)

	case types.TypeQueryChanged:
		var q types.QueryChanged
		if err := json.Unmarshal(data, &q); err != nil {
			slog.Debug("ws: ignoring malformed query-changed", "session", key, "err", err)
			return
		}
		h.coord.OnQueryChanged(key, q.Query)

	default:
		slog.Debug("ws: ignoring observer frame", "session", key, "type", typ)
	}
}
