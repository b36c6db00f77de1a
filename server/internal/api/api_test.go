package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/server/internal/api"
	"github.com/linkscore/linkscore/server/internal/coordinator"
	"github.com/linkscore/linkscore/server/internal/scoring"
	"github.com/linkscore/linkscore/server/internal/session"
)

// --- test helpers -----------------------------------------------------------

type nopScorer struct{}

func (nopScorer) Score(context.Context, string) (scoring.Result, error) {
	return scoring.Result{}, nil
}

func newHandler(t *testing.T, st *session.Store) http.Handler {
	t.Helper()
	coord := coordinator.New(st, nopScorer{}, coordinator.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = coord.Shutdown(ctx)
	})
	return api.New(st, coord)
}

// seeded returns a store holding one session "tab-1" with one result per band.
func seeded() *session.Store {
	st := session.New(session.Options{})
	st.ResetQuery("tab-1", "rust async")
	st.Upsert("tab-1", types.ScoredResult{ID: "a", Title: "A", URL: "https://x.test/a", Score: 10})
	st.Upsert("tab-1", types.ScoredResult{ID: "b", Title: "B", URL: "https://x.test/b", Score: 50})
	st.Upsert("tab-1", types.ScoredResult{ID: "c", Title: "C", URL: "https://x.test/c", Score: 85, Reason: "looks synthetic"})
	st.Upsert("tab-1", types.ScoredResult{ID: "d", Title: "D", URL: "https://x.test/d", Score: -1})
	return st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := newHandler(t, session.New(session.Options{}))
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "ok" || resp.SessionCount != 0 {
		t.Errorf("health: got %+v", resp)
	}
}

func TestHealth_CountsSessions(t *testing.T) {
	h := newHandler(t, seeded())
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.SessionCount != 1 {
		t.Errorf("session_count: got %d, want 1", resp.SessionCount)
	}
}

// --- /api/v1/sessions -------------------------------------------------------

func TestListSessions_Empty_ReturnsArray(t *testing.T) {
	h := newHandler(t, session.New(session.Options{}))
	rr := get(t, h, "/api/v1/sessions")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != "[]\n" {
		t.Errorf("body: got %q, want []", got)
	}
}

func TestListSessions_ReturnsSummary(t *testing.T) {
	h := newHandler(t, seeded())
	var out []api.SessionResponse
	decode(t, get(t, h, "/api/v1/sessions"), &out)

	if len(out) != 1 {
		t.Fatalf("sessions: got %d, want 1", len(out))
	}
	s := out[0]
	if s.SessionKey != "tab-1" || s.Query != "rust async" || s.ResultCount != 4 {
		t.Errorf("session: got %+v", s)
	}
	if _, err := time.Parse(time.RFC3339, s.TouchedAt); err != nil {
		t.Errorf("touched_at: %v", err)
	}
}

func TestListSessions_TrailingSlash(t *testing.T) {
	h := newHandler(t, seeded())
	var out []api.SessionResponse
	decode(t, get(t, h, "/api/v1/sessions/"), &out)
	if len(out) != 1 {
		t.Errorf("sessions: got %d, want 1", len(out))
	}
}

// --- /api/v1/sessions/{key} -------------------------------------------------

func TestGetSession_ReturnsBackfill(t *testing.T) {
	h := newHandler(t, seeded())
	rr := get(t, h, "/api/v1/sessions/tab-1")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var bulk types.BulkResults
	decode(t, rr, &bulk)
	if bulk.Type != types.TypeBulkResults || bulk.SessionKey != "tab-1" || bulk.Query != "rust async" {
		t.Errorf("bulk: got %+v", bulk)
	}
	if len(bulk.Items) != 4 {
		t.Fatalf("items: got %d, want 4", len(bulk.Items))
	}
	if bulk.Items[0].ID != "a" || bulk.Items[3].ID != "d" {
		t.Errorf("items out of insertion order: %+v", bulk.Items)
	}
}

func TestGetSession_Filter(t *testing.T) {
	h := newHandler(t, seeded())
	cases := map[string][]string{
		"all":  {"a", "b", "c", "d"},
		"low":  {"a"},
		"mid":  {"b"},
		"high": {"c"},
	}
	for filter, want := range cases {
		var bulk types.BulkResults
		decode(t, get(t, h, "/api/v1/sessions/tab-1?filter="+filter), &bulk)
		if len(bulk.Items) != len(want) {
			t.Errorf("filter %s: got %d items, want %d", filter, len(bulk.Items), len(want))
			continue
		}
		for i, id := range want {
			if bulk.Items[i].ID != id {
				t.Errorf("filter %s item %d: got %s, want %s", filter, i, bulk.Items[i].ID, id)
			}
		}
	}
}

func TestGetSession_BadFilter_Returns400(t *testing.T) {
	h := newHandler(t, seeded())
	rr := get(t, h, "/api/v1/sessions/tab-1?filter=spicy")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestGetSession_Unknown_Returns404(t *testing.T) {
	h := newHandler(t, seeded())
	rr := get(t, h, "/api/v1/sessions/missing")

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("error field: missing")
	}
}

func TestGetSession_EmptySession_EmptyItemsArray(t *testing.T) {
	st := session.New(session.Options{})
	st.ResetQuery("tab-2", "")
	h := newHandler(t, st)

	var resp map[string]interface{}
	decode(t, get(t, h, "/api/v1/sessions/tab-2"), &resp)
	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 0 {
		t.Errorf("items: got %v, want []", resp["items"])
	}
}

// --- method checks ----------------------------------------------------------

func TestEndpoints_NonGet_Returns405(t *testing.T) {
	h := newHandler(t, seeded())
	for _, path := range []string{"/api/v1/health", "/api/v1/sessions", "/api/v1/sessions/tab-1"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: got %d, want 405", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s content-type: got %q", path, ct)
		}
	}
}
