package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/persistence/indexdb"
	"tileforge.dev/internal/settings"
)

type runtimeIndex interface {
	editor.JournalSink
	Close() error
}

func openRuntimeIndex(cfg settings.Settings, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB || !cfg.Index.Enabled {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TILEFORGE_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(cfg.Index.Path)
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("TILEFORGE_INDEX_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("TILEFORGE_INDEX_BACKEND=remote but TILEFORGE_INDEX_INGEST_URL is empty")
		}
		return indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("TILEFORGE_INDEX_TOKEN")),
			Workspace:     strings.TrimSpace(os.Getenv("TILEFORGE_WORKSPACE")),
			BatchSize:     envInt("TILEFORGE_INDEX_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("TILEFORGE_INDEX_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported TILEFORGE_INDEX_BACKEND: %s", backend)
	}
}
