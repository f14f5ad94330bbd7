package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/persistence/r2s3"
)

type mirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *r2s3.Mirror
}

func buildMirrorRuntime(dataDir string, logger *log.Logger) (*mirrorRuntime, error) {
	if !envBool("TILEFORGE_MIRROR", false) {
		return &mirrorRuntime{enabled: false}, nil
	}

	cfg := r2s3.ClientConfig{
		Endpoint:        strings.TrimSpace(os.Getenv("TILEFORGE_MIRROR_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("TILEFORGE_MIRROR_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("TILEFORGE_MIRROR_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("TILEFORGE_MIRROR_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("TILEFORGE_MIRROR_SECRET_ACCESS_KEY")),
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("TILEFORGE_MIRROR=true but TILEFORGE_MIRROR_ENDPOINT/BUCKET/ACCESS_KEY_ID/SECRET_ACCESS_KEY are not fully set")
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, err
	}

	mirror := r2s3.NewMirror(
		client,
		dataDir,
		strings.TrimSpace(os.Getenv("TILEFORGE_MIRROR_PREFIX")),
		envInt("TILEFORGE_MIRROR_WORKERS", 2),
		envInt("TILEFORGE_MIRROR_QUEUE", 2048),
		time.Duration(envInt("TILEFORGE_MIRROR_ENQUEUE_WAIT_MS", 25))*time.Millisecond,
		logger,
	)
	return &mirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // 1-minute journal segments
		mirror:       mirror,
	}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *mirrorRuntime) WriteEntry(e editor.JournalEntry) error {
	if r == nil || !r.enabled || r.mirror == nil {
		return nil
	}
	return r.mirror.WriteEntry(e)
}

func (r *mirrorRuntime) Stats() (r2s3.Stats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return r2s3.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
