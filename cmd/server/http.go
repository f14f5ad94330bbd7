package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/mcp"
	"tileforge.dev/internal/persistence/indexdb"
	"tileforge.dev/internal/scripthost"
	"tileforge.dev/internal/transport/observer"
	"tileforge.dev/internal/transport/ws"
)

// app holds everything the HTTP surface reads from.
type app struct {
	session   *editor.Session
	ws        *ws.Server
	observer  *observer.Server
	index     runtimeIndex
	mirror    *mirrorRuntime
	scripts   *scripthost.Host
	scriptDir string
	// mcp is nil when the tools endpoint is off. Unsigned tools are only
	// served to loopback clients.
	mcp       *mcp.Server
	mcpSigned bool
	logger    *log.Logger
}

func (a *app) routes(enableAdmin, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)

	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", loopbackOnly(a.handleState))
		mux.HandleFunc("/admin/v1/save", loopbackOnly(a.handleSave))
		mux.HandleFunc("/admin/v1/actions", loopbackOnly(a.handleActions))
		mux.HandleFunc("/admin/v1/scripts", loopbackOnly(a.handleScripts))
		mux.HandleFunc("/admin/v1/scripts/run", loopbackOnly(a.handleScriptRun))
		if a.observer != nil {
			mux.HandleFunc("/admin/v1/observer/bootstrap", a.observer.BootstrapHandler())
			mux.HandleFunc("/admin/v1/observer/ws", a.observer.WSHandler())
		}
	} else if a.logger != nil {
		a.logger.Printf("admin endpoints disabled (TILEFORGE_ENABLE_ADMIN_HTTP=false)")
	}
	if a.mcp != nil {
		switch {
		case a.mcpSigned:
			mux.Handle("/mcp", a.mcp.Handler())
		case enableAdmin:
			mux.HandleFunc("/mcp", loopbackOnly(a.mcp.Handler().ServeHTTP))
		}
	}
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", a.ws.Handler())
	return mux
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	docs := a.session.Documents()
	fmt.Fprintf(rw, "# HELP tileforge_ws_clients Current number of connected clients.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_ws_clients gauge\n")
	fmt.Fprintf(rw, "tileforge_ws_clients %d\n", a.ws.Clients())

	fmt.Fprintf(rw, "# HELP tileforge_documents Open documents.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_documents gauge\n")
	fmt.Fprintf(rw, "tileforge_documents %d\n", len(docs))

	fmt.Fprintf(rw, "# HELP tileforge_document_size Document size in tiles.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_document_size gauge\n")
	for _, d := range docs {
		fmt.Fprintf(rw, "tileforge_document_size{doc=%q,dim=%q} %d\n", d.ID, "width", d.Size.W)
		fmt.Fprintf(rw, "tileforge_document_size{doc=%q,dim=%q} %d\n", d.ID, "height", d.Size.H)
	}

	fmt.Fprintf(rw, "# HELP tileforge_document_revision Last saved revision.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_document_revision gauge\n")
	for _, d := range docs {
		fmt.Fprintf(rw, "tileforge_document_revision{doc=%q} %d\n", d.ID, d.Revision)
	}

	fmt.Fprintf(rw, "# HELP tileforge_document_dirty Whether the document has unsaved changes.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_document_dirty gauge\n")
	for _, d := range docs {
		fmt.Fprintf(rw, "tileforge_document_dirty{doc=%q} %d\n", d.ID, boolGauge(d.Dirty))
	}

	if a.observer != nil {
		fmt.Fprintf(rw, "# HELP tileforge_observers Connected observers.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_observers gauge\n")
		fmt.Fprintf(rw, "tileforge_observers %d\n", a.observer.Observers())
		fmt.Fprintf(rw, "# HELP tileforge_observer_dropped_total Entries dropped for slow observers.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "tileforge_observer_dropped_total %d\n", a.observer.Dropped())
	}

	writeIndexMetrics(rw, a.index)
	writeMirrorMetrics(rw, a.mirror)
}

func writeIndexMetrics(rw http.ResponseWriter, idx runtimeIndex) {
	switch idx := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := idx.Stats()
		fmt.Fprintf(rw, "# HELP tileforge_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "tileforge_index_queue_depth{backend=%q} %d\n", "sqlite", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP tileforge_index_dropped_total Entries dropped because the index queue was full.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_dropped_total counter\n")
		fmt.Fprintf(rw, "tileforge_index_dropped_total{backend=%q,kind=%q} %d\n", "sqlite", editor.EntryAction, s.DropActionTotal)
		fmt.Fprintf(rw, "tileforge_index_dropped_total{backend=%q,kind=%q} %d\n", "sqlite", editor.EntrySave, s.DropSaveTotal)
		fmt.Fprintf(rw, "# HELP tileforge_index_write_fail_total Failed index writes.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_write_fail_total counter\n")
		fmt.Fprintf(rw, "tileforge_index_write_fail_total{backend=%q} %d\n", "sqlite", s.WriteFailTotal)
	case *indexdb.RemoteIndex:
		s := idx.Stats()
		fmt.Fprintf(rw, "# HELP tileforge_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "tileforge_index_queue_depth{backend=%q} %d\n", "remote", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP tileforge_index_sent_total Entries delivered to the ingest endpoint.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_sent_total counter\n")
		fmt.Fprintf(rw, "tileforge_index_sent_total{backend=%q} %d\n", "remote", s.SentTotal)
		fmt.Fprintf(rw, "# HELP tileforge_index_flush_fail_total Failed ingest flushes.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_flush_fail_total counter\n")
		fmt.Fprintf(rw, "tileforge_index_flush_fail_total{backend=%q} %d\n", "remote", s.FlushFailTotal)
		fmt.Fprintf(rw, "# HELP tileforge_index_dropped_total Entries dropped because the index queue was full.\n")
		fmt.Fprintf(rw, "# TYPE tileforge_index_dropped_total counter\n")
		fmt.Fprintf(rw, "tileforge_index_dropped_total{backend=%q,kind=%q} %d\n", "remote", "queue", s.QueueDroppedTotal)
		fmt.Fprintf(rw, "tileforge_index_dropped_total{backend=%q,kind=%q} %d\n", "remote", "retain", s.RetainDropTotal)
	}
}

func writeMirrorMetrics(rw http.ResponseWriter, mirror *mirrorRuntime) {
	s, ok := mirror.Stats()
	if !ok {
		return
	}
	fmt.Fprintf(rw, "# HELP tileforge_mirror_queue_depth Current mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "tileforge_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP tileforge_mirror_queue_capacity Mirror queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_queue_capacity gauge\n")
	fmt.Fprintf(rw, "tileforge_mirror_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP tileforge_mirror_enqueued_total Total mirror enqueue attempts.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_enqueued_total counter\n")
	fmt.Fprintf(rw, "tileforge_mirror_enqueued_total %d\n", s.EnqueuedTotal)

	fmt.Fprintf(rw, "# HELP tileforge_mirror_dropped_total Files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "tileforge_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP tileforge_mirror_upload_success_total Successful uploads.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_upload_success_total counter\n")
	fmt.Fprintf(rw, "tileforge_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(rw, "# HELP tileforge_mirror_upload_fail_total Uploads that failed after retry.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_upload_fail_total counter\n")
	fmt.Fprintf(rw, "tileforge_mirror_upload_fail_total %d\n", s.UploadFailTotal)

	fmt.Fprintf(rw, "# HELP tileforge_mirror_last_success_unix Unix timestamp of the last upload.\n")
	fmt.Fprintf(rw, "# TYPE tileforge_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "tileforge_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	resp := struct {
		Active    string                `json:"active,omitempty"`
		Documents []editor.DocumentInfo `json:"documents"`
		Clients   int                   `json:"clients"`
		Observers int                   `json:"observers"`
	}{
		Documents: a.session.Documents(),
		Clients:   a.ws.Clients(),
	}
	if d, ok := a.session.Active(); ok {
		resp.Active = d.ID
	}
	if a.observer != nil {
		resp.Observers = a.observer.Observers()
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *app) handleSave(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ctx = editor.WithSource(ctx, "admin")

	doc := strings.TrimSpace(r.URL.Query().Get("doc"))
	path, err := a.session.Save(ctx, doc)
	if err != nil {
		writeJSON(rw, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "path": path})
}

func (a *app) handleActions(rw http.ResponseWriter, r *http.Request) {
	idx, ok := a.index.(*indexdb.SQLiteIndex)
	if !ok {
		http.Error(rw, "sqlite index disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := idx.RecentActions(r.Context(), strings.TrimSpace(r.URL.Query().Get("doc")), limit)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if rows == nil {
		rows = []indexdb.ActionRow{}
	}
	writeJSON(rw, http.StatusOK, rows)
}

func (a *app) handleScripts(rw http.ResponseWriter, r *http.Request) {
	files, err := scripthost.List(a.scriptDir)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	writeJSON(rw, http.StatusOK, names)
}

func (a *app) handleScriptRun(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".js") {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad script name"})
		return
	}
	res, err := a.scripts.RunFile(r.Context(), filepath.Join(a.scriptDir, name))
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, scripthost.ErrScriptTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error(), "logs": res.Logs})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "value": res.Value, "logs": res.Logs})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrDocNotFound), errors.Is(err, editor.ErrNoActiveDocument):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrNoPath):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
