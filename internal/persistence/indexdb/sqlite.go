package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tileforge.dev/internal/editor"
)

// SQLiteIndex is a queryable secondary index of the journal. Writes are
// queued and applied by one goroutine; when the queue is full entries are
// dropped and counted, the JSONL journal stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropActionTotal atomic.Uint64
	dropSaveTotal   atomic.Uint64
	writeFailTotal  atomic.Uint64
}

type reqKind int

const (
	reqAction reqKind = iota + 1
	reqSave
	reqFlush
)

type req struct {
	kind  reqKind
	entry editor.JournalEntry
	done  chan struct{}
}

type Stats struct {
	DropActionTotal uint64 `json:"drop_action_total"`
	DropSaveTotal   uint64 `json:"drop_save_total"`
	WriteFailTotal  uint64 `json:"write_fail_total"`
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
}

// ActionRow is one indexed action.
type ActionRow struct {
	Seq     uint64 `json:"seq"`
	Time    string `json:"time"`
	Doc     string `json:"doc"`
	Source  string `json:"source,omitempty"`
	Action  string `json:"action"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Message string `json:"message,omitempty"`
}

// RevisionRow is one indexed save.
type RevisionRow struct {
	Doc      string `json:"doc"`
	Revision int    `json:"revision"`
	Path     string `json:"path"`
	Archive  string `json:"archive,omitempty"`
	Size     string `json:"size"`
	SavedAt  string `json:"saved_at"`
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueue)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			doc TEXT NOT NULL,
			seq INTEGER NOT NULL,
			time TEXT NOT NULL,
			source TEXT NOT NULL,
			action TEXT NOT NULL,
			before_w INTEGER NOT NULL,
			before_h INTEGER NOT NULL,
			after_w INTEGER NOT NULL,
			after_h INTEGER NOT NULL,
			message TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (time, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_doc_time ON actions(doc, time);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_action ON actions(action);`,
		`CREATE TABLE IF NOT EXISTS revisions (
			doc TEXT NOT NULL,
			revision INTEGER NOT NULL,
			path TEXT NOT NULL,
			archive_path TEXT,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (doc, revision)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEntry queues e. It never blocks.
func (s *SQLiteIndex) WriteEntry(e editor.JournalEntry) error {
	if s == nil || s.closed.Load() || !e.Applied {
		return nil
	}
	kind, drops := reqAction, &s.dropActionTotal
	if e.Kind == editor.EntrySave {
		kind, drops = reqSave, &s.dropSaveTotal
	}
	select {
	case s.ch <- req{kind: kind, entry: e}:
	default:
		drops.Add(1)
	}
	return nil
}

// Flush waits until every entry queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropActionTotal: s.dropActionTotal.Load(),
		DropSaveTotal:   s.dropSaveTotal.Load(),
		WriteFailTotal:  s.writeFailTotal.Load(),
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
	}
}

// RecentActions returns the latest actions, newest first. An empty doc
// covers every document.
func (s *SQLiteIndex) RecentActions(ctx context.Context, doc string, limit int) ([]ActionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT seq,time,doc,source,action,before_w,before_h,after_w,after_h,COALESCE(message,'') FROM actions`
	args := []any{}
	if doc != "" {
		q += ` WHERE doc=?`
		args = append(args, doc)
	}
	q += ` ORDER BY time DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionRow
	for rows.Next() {
		var (
			r      ActionRow
			bw, bh int
			aw, ah int
		)
		if err := rows.Scan(&r.Seq, &r.Time, &r.Doc, &r.Source, &r.Action, &bw, &bh, &aw, &ah, &r.Message); err != nil {
			return nil, err
		}
		r.Before = fmt.Sprintf("%dx%d", bw, bh)
		r.After = fmt.Sprintf("%dx%d", aw, ah)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Revisions lists the saved revisions of doc, oldest first.
func (s *SQLiteIndex) Revisions(ctx context.Context, doc string) ([]RevisionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc,revision,path,COALESCE(archive_path,''),width,height,saved_at FROM revisions WHERE doc=? ORDER BY revision`, doc)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RevisionRow
	for rows.Next() {
		var (
			r    RevisionRow
			w, h int
		)
		if err := rows.Scan(&r.Doc, &r.Revision, &r.Path, &r.Archive, &w, &h, &r.SavedAt); err != nil {
			return nil, err
		}
		r.Size = fmt.Sprintf("%dx%d", w, h)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActionCounts returns how often each action was applied.
func (s *SQLiteIndex) ActionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM actions GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			a string
			n int
		)
		if err := rows.Scan(&a, &n); err != nil {
			return nil, err
		}
		out[a] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(doc,seq,time,source,action,before_w,before_h,after_w,after_h,message,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertRevision, _ := s.db.Prepare(`INSERT OR REPLACE INTO revisions(doc,revision,path,archive_path,width,height,saved_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertAction != nil {
			_ = insertAction.Close()
		}
		if insertRevision != nil {
			_ = insertRevision.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFailTotal.Add(1)
		}
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		s.writeFailTotal.Add(1)
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			s.writeFailTotal.Add(1)
			continue
		}
		e := r.entry
		switch r.kind {
		case reqAction:
			if insertAction == nil {
				continue
			}
			raw, _ := json.Marshal(e)
			if _, err := tx.Stmt(insertAction).Exec(
				e.Doc, int64(e.Seq), e.Time, e.Source, e.Action,
				e.Before.W, e.Before.H, e.After.W, e.After.H,
				e.Message, string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSave:
			if insertRevision == nil {
				continue
			}
			if _, err := tx.Stmt(insertRevision).Exec(
				e.Doc, e.Revision, e.Path, e.Archive, e.After.W, e.After.H, e.Time,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit once the queue drains so readers sharing the single
		// connection are not held behind an idle transaction.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
