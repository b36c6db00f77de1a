package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkscore/linkscore/pkg/types"
	"github.com/linkscore/linkscore/server/internal/coordinator"
	"github.com/linkscore/linkscore/server/internal/scoring"
	"github.com/linkscore/linkscore/server/internal/session"
	wsHub "github.com/linkscore/linkscore/server/internal/ws"
)

// --- helpers ----------------------------------------------------------------

type scoreFunc func(ctx context.Context, url string) (scoring.Result, error)

func (f scoreFunc) Score(ctx context.Context, url string) (scoring.Result, error) {
	return f(ctx, url)
}

func fixedScore(ctx context.Context, url string) (scoring.Result, error) {
	return scoring.Result{Score: 85, Reason: "looks synthetic"}, nil
}

type testHub struct {
	base   string
	hub    *wsHub.Hub
	store  *session.Store
	cancel context.CancelFunc
}

// startHub serves both WebSocket endpoints from a test HTTP server backed by
// a real coordinator and session store.
func startHub(t *testing.T) *testHub {
	t.Helper()

	st := session.New(session.Options{})
	coord := coordinator.New(st, scoreFunc(fixedScore), coordinator.Options{})
	hub := wsHub.New(coord, 16)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/observer", hub.ServeObserver)
	mux.HandleFunc("/ws/viewer", hub.ServeViewer)
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		_ = coord.Shutdown(sctx)
	})

	return &testHub{
		base:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		hub:    hub,
		store:  st,
		cancel: cancel,
	}
}

// dial connects a WebSocket client to path and returns the connection.
func dial(t *testing.T, th *testHub, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(th.base+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one text frame from conn with a short deadline.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return m
}

func writeFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func report(cands ...types.Candidate) types.Report {
	return types.Report{Type: types.TypeReport, Candidates: cands}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- tests ------------------------------------------------------------------

func TestObserver_Connect_ReceivesChannelOpen(t *testing.T) {
	th := startHub(t)
	conn := dial(t, th, "/ws/observer?session=tab-1")

	m := readFrame(t, conn)
	if m["type"] != types.TypeChannelOpen {
		t.Errorf("type: got %v, want %s", m["type"], types.TypeChannelOpen)
	}
	if m["sessionKey"] != "tab-1" {
		t.Errorf("sessionKey: got %v, want tab-1", m["sessionKey"])
	}
}

func TestObserver_NoSessionParam_GeneratesKey(t *testing.T) {
	th := startHub(t)
	conn := dial(t, th, "/ws/observer")

	m := readFrame(t, conn)
	key, _ := m["sessionKey"].(string)
	if key == "" {
		t.Fatal("sessionKey: empty")
	}
	waitFor(t, func() bool { _, ok := th.store.Snapshot(key); return ok })
}

func TestObserver_Report_ReceivesTagUpdate(t *testing.T) {
	th := startHub(t)
	conn := dial(t, th, "/ws/observer?session=tab-1")
	readFrame(t, conn) // channel-open

	writeFrame(t, conn, report(types.Candidate{ID: "a1", Title: "T", URL: "https://x.test/1"}))

	m := readFrame(t, conn)
	if m["type"] != types.TypeTagUpdate {
		t.Fatalf("type: got %v, want %s", m["type"], types.TypeTagUpdate)
	}
	if m["id"] != "a1" || m["score"] != 85.0 {
		t.Errorf("tag-update: got %v", m)
	}
}

func TestObserver_MalformedFrames_Ignored(t *testing.T) {
	th := startHub(t)
	conn := dial(t, th, "/ws/observer?session=tab-1")
	readFrame(t, conn)

	for _, raw := range []string{"not json", `{"type":"mystery"}`, `{"type":"report","candidates":5}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	writeFrame(t, conn, report(types.Candidate{ID: "a1", URL: "https://x.test/1"}))

	m := readFrame(t, conn)
	if m["type"] != types.TypeTagUpdate {
		t.Errorf("type: got %v, want %s", m["type"], types.TypeTagUpdate)
	}
}

func TestObserver_Disconnect_RetainsSession(t *testing.T) {
	th := startHub(t)
	conn := dial(t, th, "/ws/observer?session=tab-1")
	readFrame(t, conn)

	conn.Close()
	waitFor(t, func() bool { return th.hub.Count() == 0 })

	if _, ok := th.store.Snapshot("tab-1"); !ok {
		t.Error("session dropped on disconnect, want retained")
	}
}

func TestViewer_Connect_ReceivesBackfillFirst(t *testing.T) {
	th := startHub(t)

	obs := dial(t, th, "/ws/observer?session=tab-1")
	readFrame(t, obs)
	writeFrame(t, obs, report(
		types.Candidate{ID: "r1", URL: "https://x.test/1"},
		types.Candidate{ID: "r2", URL: "https://x.test/2"},
	))
	readFrame(t, obs)
	readFrame(t, obs)

	viewer := dial(t, th, "/ws/viewer?session=tab-1")
	m := readFrame(t, viewer)
	if m["type"] != types.TypeBulkResults {
		t.Fatalf("type: got %v, want %s", m["type"], types.TypeBulkResults)
	}
	items, ok := m["items"].([]interface{})
	if !ok || len(items) != 2 {
		t.Errorf("items: got %v, want 2 entries", m["items"])
	}
}

func TestViewer_UnknownSession_EmptyBackfill(t *testing.T) {
	th := startHub(t)
	viewer := dial(t, th, "/ws/viewer?session=nobody")

	m := readFrame(t, viewer)
	items, ok := m["items"].([]interface{})
	if !ok || len(items) != 0 {
		t.Errorf("items: got %v, want []", m["items"])
	}
}

func TestViewer_StreamsInCommitOrder(t *testing.T) {
	th := startHub(t)

	viewer := dial(t, th, "/ws/viewer?session=tab-1")
	readFrame(t, viewer) // bulk-results

	obs := dial(t, th, "/ws/observer?session=tab-1")
	readFrame(t, obs)
	writeFrame(t, obs, types.QueryChanged{Type: types.TypeQueryChanged, Query: "rust"})
	writeFrame(t, obs, report(types.Candidate{ID: "a1", URL: "https://x.test/1"}))

	want := []string{types.TypeResultsCleared, types.TypeQueryChanged, types.TypeResultDelta}
	for i, typ := range want {
		m := readFrame(t, viewer)
		if m["type"] != typ {
			t.Fatalf("frame %d: got %v, want %s", i, m["type"], typ)
		}
		if m["sessionKey"] != "tab-1" {
			t.Errorf("frame %d sessionKey: got %v", i, m["sessionKey"])
		}
		if typ == types.TypeQueryChanged && m["query"] != "rust" {
			t.Errorf("query: got %v, want rust", m["query"])
		}
	}
}

func TestViewer_ViewerReady_SwitchesSession(t *testing.T) {
	th := startHub(t)
	th.store.ResetQuery("tab-2", "golang")

	viewer := dial(t, th, "/ws/viewer?session=tab-1")
	readFrame(t, viewer)

	writeFrame(t, viewer, types.ViewerReady{Type: types.TypeViewerReady, SessionKey: "tab-2"})

	m := readFrame(t, viewer)
	if m["type"] != types.TypeBulkResults || m["sessionKey"] != "tab-2" || m["query"] != "golang" {
		t.Errorf("backfill: got %v", m)
	}
}

func TestViewer_NoSessionParam_WaitsForViewerReady(t *testing.T) {
	th := startHub(t)
	viewer := dial(t, th, "/ws/viewer")

	writeFrame(t, viewer, types.ViewerReady{Type: types.TypeViewerReady, SessionKey: "tab-1"})

	m := readFrame(t, viewer)
	if m["type"] != types.TypeBulkResults || m["sessionKey"] != "tab-1" {
		t.Errorf("backfill: got %v", m)
	}
}

func TestHub_Connections_ByRole(t *testing.T) {
	th := startHub(t)
	obs := dial(t, th, "/ws/observer?session=a")
	readFrame(t, obs)
	for i := 0; i < 2; i++ {
		v := dial(t, th, "/ws/viewer?session=a")
		readFrame(t, v)
	}

	waitFor(t, func() bool {
		o, v := th.hub.Connections()
		return o == 1 && v == 2
	})
	if n := th.hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	th := startHub(t)
	conn := dial(t, th, "/ws/viewer?session=a")
	readFrame(t, conn)

	th.cancel()

	waitFor(t, func() bool { return th.hub.Count() == 0 })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	st := session.New(session.Options{})
	hub := wsHub.New(coordinator.New(st, scoreFunc(fixedScore), coordinator.Options{}), 0)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeViewer))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
