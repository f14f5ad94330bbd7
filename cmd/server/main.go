package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/mcp"
	persistlog "tileforge.dev/internal/persistence/log"
	"tileforge.dev/internal/persistence/snapshot"
	"tileforge.dev/internal/scripthost"
	"tileforge.dev/internal/settings"
	"tileforge.dev/internal/transport/observer"
	"tileforge.dev/internal/transport/ws"
)

type docList []string

func (d *docList) String() string     { return strings.Join(*d, ",") }
func (d *docList) Set(v string) error { *d = append(*d, v); return nil }

func main() {
	var (
		addr         = flag.String("addr", "", "http listen address (default: settings server.addr)")
		settingsPath = flag.String("settings", "", "path to settings.yaml (optional)")
		dataDir      = flag.String("data", "", "runtime data directory (default: settings data_dir)")
		disableDB    = flag.Bool("disable_db", false, "disable the action/revision index")
		token        = flag.String("token", "", "token clients must present in HELLO (or set TILEFORGE_TOKEN)")
		openLatest   = flag.Bool("open_data_dir", true, "open every document found at the top of the data dir")
		docs         docList
	)
	flag.Var(&docs, "open", "document to open (repeatable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
		cfg.Index.Path = ""
		cfg.Scripts.Dir = ""
		cfg.Normalize()
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Server.Addr = *addr
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	reg := actions.Default()
	if unknown := reg.ApplyOverrides(cfg.Actions); len(unknown) > 0 {
		logger.Printf("settings: overrides for unknown actions ignored: %s", strings.Join(unknown, ","))
	}

	idx, err := openRuntimeIndex(cfg, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	mirror, err := buildMirrorRuntime(cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	defer mirror.Close()

	var sinks []editor.JournalSink
	if cfg.Journal.Enabled {
		opts := persistlog.LoggerOptions{}
		if mirror.enabled {
			opts.RotateLayout = mirror.rotateLayout
			opts.OnClose = mirror.Enqueue
		}
		journal := persistlog.NewJournalLoggerWithOptions(cfg.DataDir, opts)
		defer journal.Close()
		sinks = append(sinks, journal)
	}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	if mirror.enabled {
		sinks = append(sinks, mirror)
	}

	sess := editor.New(editor.Config{
		Registry:  reg,
		UndoLimit: cfg.UndoLimit,
		DataDir:   cfg.DataDir,
		Archive:   cfg.Archive.Enabled,
		Sinks:     sinks,
		Logger:    log.New(os.Stdout, "[editor] ", log.LstdFlags|log.Lmicroseconds),
	})

	for _, p := range docs {
		if _, err := sess.Open(p); err != nil {
			logger.Fatalf("%v", err)
		}
	}
	if len(docs) == 0 && *openLatest {
		for _, p := range documentsIn(cfg.DataDir) {
			if _, err := sess.Open(p); err != nil {
				logger.Printf("skip %v", err)
			}
		}
	}

	obsSrv := observer.NewServer(sess, logger)
	sess.AddSink(obsSrv)

	tok := strings.TrimSpace(*token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("TILEFORGE_TOKEN"))
	}
	wsSrv := ws.NewServer(sess, ws.Config{
		Token:           tok,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		SendQueue:       cfg.Server.SendQueue,
	}, logger)

	a := &app{
		session:  sess,
		ws:       wsSrv,
		observer: obsSrv,
		index:    idx,
		mirror:   mirror,
		scripts: scripthost.New(sess, scripthost.Config{
			Timeout: time.Duration(cfg.Scripts.TimeoutMS) * time.Millisecond,
			Logger:  log.New(os.Stdout, "[script] ", log.LstdFlags|log.Lmicroseconds),
		}),
		scriptDir: cfg.Scripts.Dir,
		logger:    logger,
	}
	if envBool("TILEFORGE_ENABLE_MCP", true) {
		secret := strings.TrimSpace(os.Getenv("TILEFORGE_MCP_HMAC_SECRET"))
		a.mcp, err = mcp.NewServer(mcp.Config{
			Editor:     sess,
			HMACSecret: secret,
			Logger:     log.New(os.Stdout, "[mcp] ", log.LstdFlags|log.Lmicroseconds),
		})
		if err != nil {
			logger.Fatalf("mcp: %v", err)
		}
		a.mcpSigned = secret != ""
	}
	mux := a.routes(
		envBool("TILEFORGE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		envBool("TILEFORGE_ENABLE_PPROF_HTTP", false),
	)

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s docs=%d", cfg.Server.Addr, len(sess.Documents()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	for _, d := range sess.Documents() {
		if d.Dirty {
			logger.Printf("doc=%s has unsaved changes", d.ID)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// documentsIn lists the documents stored at the top of dataDir. Archived
// revisions live in subdirectories and are skipped.
func documentsIn(dataDir string) []string {
	var out []string
	for _, ext := range []string{snapshot.Ext, ".json"} {
		files, err := filepath.Glob(filepath.Join(dataDir, "*"+ext))
		if err != nil {
			continue
		}
		out = append(out, files...)
	}
	return out
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
