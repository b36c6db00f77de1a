package api

import (
	"cmp"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/server/internal/coordinator"
	"github.com/linkscore/linkscore/server/internal/session"
)

const sessionsPrefix = "/api/v1/sessions/"

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *session.Store
	coord *coordinator.Coordinator
	mux   *http.ServeMux
}

// New creates a Handler reading sessions from st and backfills through coord,
// and registers all routes.
func New(st *session.Store, coord *coordinator.Coordinator) http.Handler {
	h := &Handler{store: st, coord: coord, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/sessions", h.listSessions)
	h.mux.HandleFunc(sessionsPrefix, h.getSession) // subtree: extracts {key}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s := h.coord.Stats()
	jsonResp(w, http.StatusOK, HealthResponse{
		State:         "ok",
		SessionCount:  h.store.Count(),
		ObserverCount: s.Channels,
		ViewerCount:   s.Subscriptions,
		ScoresOK:      s.ScoresOK,
		ScoresFailed:  s.ScoresFailed,
	})
}

// listSessions returns GET /api/v1/sessions, most recently touched first.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	infos := h.store.List()
	slices.SortFunc(infos, func(a, b session.Info) int {
		if c := b.TouchedAt.Compare(a.TouchedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	out := make([]SessionResponse, 0, len(infos))
	for _, in := range infos {
		out = append(out, toSessionResponse(in))
	}
	jsonResp(w, http.StatusOK, out)
}

// getSession returns GET /api/v1/sessions/{key}: the session's current
// results as a bulk-results message, narrowed by ?filter=.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	key := strings.TrimPrefix(r.URL.Path, sessionsPrefix)
	if key == "" {
		// Bare /api/v1/sessions/ lists.
		h.listSessions(w, r)
		return
	}

	filter, err := types.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := h.store.Snapshot(key); !ok {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}

	bulk := h.coord.OnViewerAttach(key)
	bulk.Items = filter.Apply(bulk.Items)
	jsonResp(w, http.StatusOK, bulk)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toSessionResponse maps a session.Info to its JSON representation.
func toSessionResponse(in session.Info) SessionResponse {
	return SessionResponse{
		SessionKey:  in.Key,
		Query:       in.Query,
		ResultCount: in.Results,
		Attached:    in.Attached,
		TouchedAt:   in.TouchedAt.UTC().Format(time.RFC3339),
	}
}
