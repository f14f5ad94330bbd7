package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tileforge.dev/internal/editor"
)

// RemoteConfig points the journal at an HTTP ingest endpoint that accepts
// batches of entries as {"events":[...]}.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	Workspace     string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds how many unsent entries survive failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	sentTotal         atomic.Uint64
	flushFailTotal    atomic.Uint64
	queueDroppedTotal atomic.Uint64
	retainDropTotal   atomic.Uint64
}

type remoteEvent struct {
	Kind      string              `json:"kind"`
	Workspace string              `json:"workspace"`
	Payload   editor.JournalEntry `json:"payload"`
}

type RemoteStats struct {
	SentTotal         uint64 `json:"sent_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	RetainDropTotal   uint64 `json:"retain_drop_total"`
	QueueDepth        int    `json:"queue_depth"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Workspace = strings.TrimSpace(cfg.Workspace)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "default"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &RemoteIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan remoteEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

// Close flushes what is queued (one attempt) and stops the sender.
func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) WriteEntry(e editor.JournalEntry) error {
	if d == nil || d.closed.Load() || !e.Applied {
		return nil
	}
	select {
	case d.ch <- remoteEvent{Kind: e.Kind, Workspace: d.cfg.Workspace, Payload: e}:
	default:
		d.queueDroppedTotal.Add(1)
		d.printf("ingest queue full; drop kind=%s doc=%s seq=%d", e.Kind, e.Doc, e.Seq)
	}
	return nil
}

func (d *RemoteIndex) Stats() RemoteStats {
	if d == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		SentTotal:         d.sentTotal.Load(),
		FlushFailTotal:    d.flushFailTotal.Load(),
		QueueDroppedTotal: d.queueDroppedTotal.Load(),
		RetainDropTotal:   d.retainDropTotal.Load(),
		QueueDepth:        len(d.ch),
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		n := min(len(batch), d.cfg.BatchSize)
		if err := d.sendBatch(batch[:n]); err != nil {
			d.flushFailTotal.Add(1)
			d.printf("ingest flush failed batch=%d retained=%d err=%v", n, len(batch), err)
			// Keep the batch for the next tick, bounded by MaxRetained.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDropTotal.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.sentTotal.Add(uint64(n))
		batch = append(batch[:0], batch[n:]...)
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-tileforge-index-token", d.cfg.Token)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (d *RemoteIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
