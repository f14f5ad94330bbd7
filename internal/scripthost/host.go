// Package scripthost runs extension scripts against an editor session.
// A script sees a global `tiled` object:
//
//	tiled.trigger(id)      runs an action on the active document
//	tiled.actions()        lists registered action ids
//	tiled.log(...)         appends a line to the script log
//	tiled.activeMap        the active document's map, or null
//
// The map object exposes width, height, infinite, layers(),
// select(x, y, w, h) and tileAt(layer, x, y).
package scripthost

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"

	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/tilemap"
)

var ErrScriptTimeout = errors.New("script timed out")

type Config struct {
	Timeout time.Duration
	Logger  *log.Logger
}

type Host struct {
	session *editor.Session
	cfg     Config
}

// Result is what a finished script left behind.
type Result struct {
	Value any
	Logs  []string
}

func New(s *editor.Session, cfg Config) *Host {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Host{session: s, cfg: cfg}
}

// RunFile reads and runs one script file.
func (h *Host) RunFile(ctx context.Context, path string) (Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return h.Run(ctx, filepath.Base(path), string(src))
}

// Run executes src. It returns ErrScriptTimeout when the script outlives
// the configured timeout or ctx; actions already applied stay applied.
func (h *Host) Run(ctx context.Context, name, src string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	ctx = editor.WithSource(ctx, "script:"+name)

	vm := goja.New()
	env := &env{host: h, vm: vm, ctx: ctx, name: name}
	if err := vm.Set("tiled", env.tiledObject()); err != nil {
		return Result{}, err
	}

	type outcome struct {
		val goja.Value
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := vm.RunScript(name, src)
		done <- outcome{val, err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		vm.Interrupt("timeout")
		<-done
		return Result{Logs: env.logs}, fmt.Errorf("script %s: %w", name, ErrScriptTimeout)
	}
	if res.err != nil {
		var ie *goja.InterruptedError
		if errors.As(res.err, &ie) {
			return Result{Logs: env.logs}, fmt.Errorf("script %s: %w", name, ErrScriptTimeout)
		}
		return Result{Logs: env.logs}, fmt.Errorf("script %s: %w", name, res.err)
	}
	out := Result{Logs: env.logs}
	if res.val != nil && !goja.IsUndefined(res.val) && !goja.IsNull(res.val) {
		out.Value = res.val.Export()
	}
	return out, nil
}

// List returns the script files in dir, sorted.
func List(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.js"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// env is the per-run binding between one VM and the session.
type env struct {
	host *Host
	vm   *goja.Runtime
	ctx  context.Context
	name string
	logs []string
}

func (e *env) tiledObject() *goja.Object {
	o := e.vm.NewObject()
	_ = o.Set("trigger", e.trigger)
	_ = o.Set("actions", e.actions)
	_ = o.Set("log", e.log)
	_ = o.DefineAccessorProperty("activeMap", e.vm.ToValue(e.activeMap), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return o
}

func (e *env) trigger(id string) (map[string]any, error) {
	res, err := e.host.session.Run(e.ctx, id)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"action":  res.Action,
		"applied": res.Applied,
		"width":   res.After.W,
		"height":  res.After.H,
	}
	if res.Message != "" {
		out["message"] = res.Message
	}
	return out, nil
}

func (e *env) actions() []string { return e.host.session.Registry().IDs() }

func (e *env) log(call goja.FunctionCall) goja.Value {
	parts := make([]string, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		parts = append(parts, a.String())
	}
	line := strings.Join(parts, " ")
	e.logs = append(e.logs, line)
	if e.host.cfg.Logger != nil {
		e.host.cfg.Logger.Printf("script=%s %s", e.name, line)
	}
	return goja.Undefined()
}

// activeMap resolves the active document on every access, so a script sees
// the map that is active at that moment.
func (e *env) activeMap() goja.Value {
	var id string
	err := e.host.session.WithDocument(e.ctx, "", func(d *editor.Document) error {
		id = d.ID
		return nil
	})
	if err != nil {
		return goja.Null()
	}
	return e.mapObject(id)
}

func (e *env) withMap(docID string, fn func(m *tilemap.Map)) {
	err := e.host.session.WithDocument(e.ctx, docID, func(d *editor.Document) error {
		fn(d.Map)
		return nil
	})
	if err != nil {
		panic(e.vm.NewGoError(err))
	}
}

func (e *env) mapObject(docID string) *goja.Object {
	o := e.vm.NewObject()
	getter := func(fn func(m *tilemap.Map) any) goja.Value {
		return e.vm.ToValue(func() any {
			var v any
			e.withMap(docID, func(m *tilemap.Map) { v = fn(m) })
			return v
		})
	}
	_ = o.Set("id", docID)
	_ = o.DefineAccessorProperty("width", getter(func(m *tilemap.Map) any { return m.Width }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = o.DefineAccessorProperty("height", getter(func(m *tilemap.Map) any { return m.Height }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = o.DefineAccessorProperty("infinite", getter(func(m *tilemap.Map) any { return m.Infinite }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	_ = o.Set("select", func(x, y, w, h int) {
		e.withMap(docID, func(m *tilemap.Map) { m.Selection().SetRect(tilemap.R(x, y, w, h)) })
	})
	_ = o.Set("layers", func() []string {
		var names []string
		e.withMap(docID, func(m *tilemap.Map) {
			for _, l := range m.TileLayers() {
				names = append(names, l.Name)
			}
		})
		return names
	})
	_ = o.Set("tileAt", func(layer string, x, y int) goja.Value {
		var cell tilemap.Cell
		found := false
		e.withMap(docID, func(m *tilemap.Map) {
			if tl, ok := m.LayerByName(layer).(*tilemap.TileLayer); ok {
				cell, found = tl.CellAt(x, y), true
			}
		})
		if !found {
			panic(e.vm.NewTypeError("no tile layer named %q", layer))
		}
		if cell.Empty() {
			return goja.Null()
		}
		return e.vm.ToValue(map[string]any{
			"id":    cell.Tile.ID,
			"image": cell.Tile.ImageFileName(),
			"flags": uint32(cell.Flags),
		})
	})
	return o
}
