package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/mcp"
	"tileforge.dev/internal/persistence/indexdb"
	"tileforge.dev/internal/scripthost"
	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/transport/observer"
	"tileforge.dev/internal/transport/ws"
)

func newTestApp(t *testing.T) (*app, *indexdb.SQLiteIndex) {
	t.Helper()
	dataDir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	sess := editor.New(editor.Config{
		Registry:  actions.Default(),
		UndoLimit: 10,
		DataDir:   dataDir,
		Sinks:     []editor.JournalSink{idx},
	})
	m := tilemap.New(4, 4, 16, 16)
	m.AddLayer(m.NewTileLayer("ground"))
	if _, err := sess.Add("level1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	scriptDir := filepath.Join(dataDir, "scripts")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	obs := observer.NewServer(sess, nil)
	sess.AddSink(obs)
	return &app{
		session:   sess,
		ws:        ws.NewServer(sess, ws.Config{}, nil),
		observer:  obs,
		index:     idx,
		mirror:    &mirrorRuntime{},
		scripts:   scripthost.New(sess, scripthost.Config{Timeout: time.Second}),
		scriptDir: scriptDir,
	}, idx
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_MetricsAndState(t *testing.T) {
	a, _ := newTestApp(t)
	mux := a.routes(true, false)

	rr := do(t, mux, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", rr.Code, rr.Body.String())
	}

	rr = do(t, mux, http.MethodGet, "/metrics")
	body := rr.Body.String()
	for _, want := range []string{
		"tileforge_documents 1",
		`tileforge_document_size{doc="level1",dim="height"} 4`,
		`tileforge_document_dirty{doc="level1"} 0`,
		`tileforge_index_queue_depth{backend="sqlite"}`,
		"tileforge_observers 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "tileforge_mirror_") {
		t.Fatalf("mirror metrics reported while disabled")
	}

	rr = do(t, mux, http.MethodGet, "/admin/v1/state")
	var st struct {
		Active    string                `json:"active"`
		Documents []editor.DocumentInfo `json:"documents"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Active != "level1" || len(st.Documents) != 1 || st.Documents[0].Size.W != 4 {
		t.Fatalf("state=%+v", st)
	}
}

func TestRoutes_AdminIsLoopbackOnly(t *testing.T) {
	a, _ := newTestApp(t)
	mux := a.routes(true, false)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("code=%d want 403", rr.Code)
	}

	mux = a.routes(false, false)
	if rr := do(t, mux, http.MethodGet, "/admin/v1/state"); rr.Code != http.StatusNotFound {
		t.Fatalf("admin disabled: code=%d want 404", rr.Code)
	}
}

func TestRoutes_SaveAndActions(t *testing.T) {
	a, idx := newTestApp(t)
	mux := a.routes(true, false)

	if rr := do(t, mux, http.MethodGet, "/admin/v1/save"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET save code=%d", rr.Code)
	}
	// In-memory documents have nowhere to go.
	if rr := do(t, mux, http.MethodPost, "/admin/v1/save?doc=level1"); rr.Code != http.StatusConflict {
		t.Fatalf("save without path code=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, mux, http.MethodPost, "/admin/v1/save?doc=missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("save missing code=%d", rr.Code)
	}

	sel := tilemap.R(0, 1, 4, 2)
	if _, err := a.session.RunOn(context.Background(), "level1", actions.InsertRowsAt, &sel); err != nil {
		t.Fatalf("RunOn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rr := do(t, mux, http.MethodGet, "/admin/v1/actions?doc=level1&limit=5")
	var rows []indexdb.ActionRow
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Action != actions.InsertRowsAt || rows[0].After != "4x6" {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestRoutes_Scripts(t *testing.T) {
	a, _ := newTestApp(t)
	mux := a.routes(true, false)

	src := `tiled.activeMap.select(0, 0, 2, 4); tiled.trigger("InsertColsAt").width`
	if err := os.WriteFile(filepath.Join(a.scriptDir, "grow.js"), []byte(src), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	rr := do(t, mux, http.MethodGet, "/admin/v1/scripts")
	b, _ := io.ReadAll(rr.Body)
	if strings.TrimSpace(string(b)) != `["grow.js"]` {
		t.Fatalf("scripts=%s", b)
	}

	if rr := do(t, mux, http.MethodPost, "/admin/v1/scripts/run?name=../grow.js"); rr.Code != http.StatusBadRequest {
		t.Fatalf("traversal code=%d", rr.Code)
	}

	rr = do(t, mux, http.MethodPost, "/admin/v1/scripts/run?name=grow.js")
	var res struct {
		OK    bool    `json:"ok"`
		Value float64 `json:"value"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusOK || !res.OK || res.Value != 6 {
		t.Fatalf("code=%d res=%+v", rr.Code, res)
	}
	d, _ := a.session.Document("level1")
	if d.Map.Width != 6 {
		t.Fatalf("width=%d want 6", d.Map.Width)
	}
}

func TestRoutes_MCP(t *testing.T) {
	a, _ := newTestApp(t)
	srv, err := mcp.NewServer(mcp.Config{Editor: a.session})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	a.mcp = srv
	mux := a.routes(true, false)

	body := `{"jsonrpc":"2.0","id":1,"method":"call_tool","params":{"name":"tileforge.list_documents"}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"id":"level1"`) {
		t.Fatalf("code=%d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5000"
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unsigned remote code=%d want 403", rr.Code)
	}
}
