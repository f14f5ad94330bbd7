// Package editor resolves the current document and selection for action
// runs and serializes them, the way a desktop host runs one action at a
// time.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/persistence/archive"
	"tileforge.dev/internal/persistence/snapshot"
	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/tilemap/brush"
)

var (
	ErrDocNotFound      = errors.New("document not found")
	ErrDocExists        = errors.New("document already open")
	ErrNoActiveDocument = errors.New("no active document")
	ErrNoPath           = errors.New("document has no path")
	ErrNoLayer          = errors.New("no such layer")
)

type Config struct {
	Registry  *actions.Registry
	UndoLimit int
	// DataDir receives archived revisions when Archive is set.
	DataDir string
	Archive bool
	Sinks   []JournalSink
	Logger  *log.Logger
	Now     func() time.Time
}

type Session struct {
	cfg Config
	// sem is a one-slot lock that callers can abandon through their context.
	sem chan struct{}

	docs   map[string]*Document
	active string
	seq    uint64
}

func New(cfg Config) *Session {
	if cfg.Registry == nil {
		cfg.Registry = actions.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg:  cfg,
		sem:  make(chan struct{}, 1),
		docs: map[string]*Document{},
	}
}

func (s *Session) Registry() *actions.Registry { return s.cfg.Registry }

// AddSink attaches another journal sink, e.g. one that itself needs the
// session to be built first.
func (s *Session) AddSink(sink JournalSink) {
	_ = s.lock(context.Background())
	defer s.unlock()
	s.cfg.Sinks = append(s.cfg.Sinks, sink)
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) unlock() { <-s.sem }

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

// Open loads a document from path and makes it active.
func (s *Session) Open(path string) (*Document, error) {
	doc, err := snapshot.Read(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	m, err := snapshot.ToMap(doc)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d, err := s.add(DocIDFromPath(path), path, m)
	if err != nil {
		return nil, err
	}
	d.Revision = doc.Header.Revision
	return d, nil
}

// Add registers an in-memory map under id and makes it active.
func (s *Session) Add(id string, m *tilemap.Map) (*Document, error) {
	return s.add(id, "", m)
}

func (s *Session) add(id, path string, m *tilemap.Map) (*Document, error) {
	if id == "" || m == nil {
		return nil, fmt.Errorf("add document: empty id or nil map")
	}
	_ = s.lock(context.Background())
	defer s.unlock()
	if _, ok := s.docs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDocExists, id)
	}
	if s.cfg.UndoLimit > 0 {
		m.SetUndoLimit(s.cfg.UndoLimit)
	}
	d := &Document{ID: id, Path: path, Map: m}
	s.docs[id] = d
	actions.RegisterTilesetShortcuts(s.cfg.Registry, m)
	s.activateLocked(d)
	s.logf("opened doc=%s path=%q size=%dx%d infinite=%v", id, path, m.Width, m.Height, m.Infinite)
	return d, nil
}

// Close forgets a document. The active document moves to the first
// remaining one by id.
func (s *Session) Close(id string) error {
	_ = s.lock(context.Background())
	defer s.unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDocNotFound, id)
	}
	delete(s.docs, id)
	if s.active == id {
		s.active = ""
		actions.ClearLayerShortcuts(s.cfg.Registry)
		if ids := s.idsLocked(); len(ids) > 0 {
			s.activateLocked(s.docs[ids[0]])
		}
	}
	return nil
}

func (s *Session) Document(id string) (*Document, bool) {
	_ = s.lock(context.Background())
	defer s.unlock()
	d, ok := s.docs[id]
	return d, ok
}

// Documents describes the open documents, sorted by id.
func (s *Session) Documents() []DocumentInfo {
	_ = s.lock(context.Background())
	defer s.unlock()
	out := make([]DocumentInfo, 0, len(s.docs))
	for _, id := range s.idsLocked() {
		out = append(out, s.docs[id].info())
	}
	return out
}

func (s *Session) idsLocked() []string {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Session) SetActive(id string) error {
	_ = s.lock(context.Background())
	defer s.unlock()
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocNotFound, id)
	}
	s.activateLocked(d)
	return nil
}

func (s *Session) activateLocked(d *Document) {
	if s.active == d.ID {
		return
	}
	s.active = d.ID
	actions.ClearLayerShortcuts(s.cfg.Registry)
	actions.RegisterLayerShortcuts(s.cfg.Registry, d.Map)
}

func (s *Session) Active() (*Document, bool) {
	_ = s.lock(context.Background())
	defer s.unlock()
	d, ok := s.docs[s.active]
	return d, ok
}

// WithDocument runs fn on docID, or the active document when docID is
// empty, while holding the session lock.
func (s *Session) WithDocument(ctx context.Context, docID string, fn func(d *Document) error) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	if docID == "" {
		docID = s.active
		if docID == "" {
			return ErrNoActiveDocument
		}
	}
	d, ok := s.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocNotFound, docID)
	}
	return fn(d)
}

// Run triggers an action on the active document using its current
// selection.
func (s *Session) Run(ctx context.Context, actionID string) (actions.Result, error) {
	return s.RunOn(ctx, "", actionID, nil)
}

// RunOn triggers an action on docID, or the active document when docID is
// empty. A nil sel uses the document's selection bounding rect; a non-nil
// sel replaces the selection first, as if the user had selected it.
func (s *Session) RunOn(ctx context.Context, docID, actionID string, sel *tilemap.Rect) (actions.Result, error) {
	if err := s.lock(ctx); err != nil {
		return actions.Result{Action: actionID}, err
	}
	defer s.unlock()

	if docID == "" {
		docID = s.active
		if docID == "" {
			return actions.Result{Action: actionID}, ErrNoActiveDocument
		}
	}
	d, ok := s.docs[docID]
	if !ok {
		return actions.Result{Action: actionID}, fmt.Errorf("%w: %s", ErrDocNotFound, docID)
	}
	rect := d.Map.Selection().BoundingRect()
	if sel != nil {
		d.Map.Selection().SetRect(*sel)
		rect = *sel
	}

	res, err := s.cfg.Registry.Trigger(actionID, actions.Context{Map: d.Map, Selection: rect, Host: d})
	if err != nil {
		return res, err
	}
	if res.Applied {
		d.Dirty = true
		s.logf("doc=%s action=%s size=%dx%d->%dx%d", d.ID, actionID, res.Before.W, res.Before.H, res.After.W, res.After.H)
		s.journalLocked(JournalEntry{
			Kind:      EntryAction,
			Doc:       d.ID,
			Source:    sourceFrom(ctx),
			Action:    actionID,
			Applied:   true,
			Selection: &rect,
			Span:      res.Span,
			Before:    res.Before,
			After:     res.After,
			Message:   res.Message,
		})
	}
	return res, nil
}

func (s *Session) Undo(ctx context.Context, docID string) (actions.Result, error) {
	return s.RunOn(ctx, docID, actions.Undo, nil)
}

func (s *Session) Redo(ctx context.Context, docID string) (actions.Result, error) {
	return s.RunOn(ctx, docID, actions.Redo, nil)
}

// Paint drags the rectangle tool with stamp from one cell to another on
// the named tile layer of docID, or its current layer when layer is empty.
// It returns the number of cells written.
func (s *Session) Paint(ctx context.Context, docID, layer string, stamp *tilemap.TileLayer, from, to tilemap.Point) (int, error) {
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	if docID == "" {
		docID = s.active
		if docID == "" {
			return 0, ErrNoActiveDocument
		}
	}
	d, ok := s.docs[docID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrDocNotFound, docID)
	}
	target := d.CurrentLayer()
	if layer != "" {
		target = d.Map.LayerByName(layer)
	}
	if target == nil {
		return 0, fmt.Errorf("%w: %q", ErrNoLayer, layer)
	}

	tool := brush.NewTool(stamp)
	tool.Move(from)
	if err := tool.Press(target); err != nil {
		return 0, err
	}
	tool.Move(to)
	area := brush.Area(stamp.Size(), &from, to)
	n, err := tool.Release(d.Map)
	if err != nil || n == 0 {
		return n, err
	}
	d.Dirty = true
	sz := d.Map.Size()
	s.logf("doc=%s paint layer=%q cells=%d", d.ID, target.Info().Name, n)
	s.journalLocked(JournalEntry{
		Kind:      EntryPaint,
		Doc:       d.ID,
		Source:    sourceFrom(ctx),
		Action:    brush.MacroName,
		Applied:   true,
		Selection: &area,
		Before:    sz,
		After:     sz,
		Message:   fmt.Sprintf("layer=%s cells=%d", target.Info().Name, n),
	})
	return n, nil
}

// Save writes docID back to its path, archiving the stored revision first
// when archiving is enabled. An empty docID saves the active document.
func (s *Session) Save(ctx context.Context, docID string) (string, error) {
	return s.SaveAs(ctx, docID, "")
}

// SaveAs writes docID to path and makes path the document's file.
func (s *Session) SaveAs(ctx context.Context, docID, path string) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()

	if docID == "" {
		docID = s.active
	}
	d, ok := s.docs[docID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDocNotFound, docID)
	}
	if path == "" {
		path = d.Path
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrNoPath, docID)
	}

	var archived string
	if s.cfg.Archive && s.cfg.DataDir != "" && path == d.Path {
		p, ok, err := archive.ArchiveRevision(s.cfg.DataDir, d.ID, path, d.Revision)
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", d.ID, err)
		}
		if ok {
			archived = p
		}
	}

	rev := d.Revision + 1
	doc, err := snapshot.FromMap(d.Map, snapshot.Header{
		Name:     d.ID,
		Revision: rev,
		SavedAt:  s.cfg.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("save %s: %w", d.ID, err)
	}
	if err := snapshot.Write(path, doc); err != nil {
		return "", fmt.Errorf("save %s: %w", d.ID, err)
	}
	d.Path, d.Revision, d.Dirty = path, rev, false

	s.logf("saved doc=%s rev=%d path=%q", d.ID, rev, path)
	sz := d.Map.Size()
	s.journalLocked(JournalEntry{
		Kind:     EntrySave,
		Doc:      d.ID,
		Source:   sourceFrom(ctx),
		Applied:  true,
		Before:   sz,
		After:    sz,
		Path:     path,
		Revision: rev,
		Archive:  archived,
	})
	return path, nil
}

func (s *Session) journalLocked(e JournalEntry) {
	s.seq++
	e.Seq = s.seq
	e.Time = s.cfg.Now().UTC().Format(time.RFC3339Nano)
	for _, sink := range s.cfg.Sinks {
		if err := sink.WriteEntry(e); err != nil {
			s.logf("journal doc=%s seq=%d: %v", e.Doc, e.Seq, err)
		}
	}
}
