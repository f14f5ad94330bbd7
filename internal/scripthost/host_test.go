package scripthost

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/tilemap"
)

func newHost(t *testing.T, timeout time.Duration) (*Host, *editor.Session, *bytes.Buffer) {
	t.Helper()
	sess := editor.New(editor.Config{Registry: actions.Default()})
	m := tilemap.New(5, 5, 16, 16)
	ts := tilemap.NewTileset("ts", 16, 16)
	grass := ts.AddTile("tiles/grass.png")
	m.AddTileset(ts)
	l := m.NewTileLayer("ground")
	m.AddLayer(l)
	e := l.Edit()
	e.SetTile(2, 3, grass, tilemap.FlipHorizontally)
	e.Apply()
	if _, err := sess.Add("level1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var buf bytes.Buffer
	return New(sess, Config{Timeout: timeout, Logger: log.New(&buf, "[script] ", 0)}), sess, &buf
}

func TestRun_TriggersActionsOnActiveMap(t *testing.T) {
	h, sess, logs := newHost(t, 2*time.Second)
	src := `
var m = tiled.activeMap;
m.select(0, 1, m.width, 2);
var r = tiled.trigger("InsertRowsAt");
tiled.log("applied", r.applied, "height", m.height);
var t = m.tileAt("ground", 2, 5);
tiled.log(t.image, t.flags);
m.height;
`
	res, err := h.Run(context.Background(), "grow.js", src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Value != int64(7) {
		t.Fatalf("value=%#v want 7", res.Value)
	}
	want := []string{"applied true height 7", "tiles/grass.png 1"}
	if diff := cmp.Diff(want, res.Logs); diff != "" {
		t.Fatalf("logs (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "script=grow.js applied true height 7") {
		t.Fatalf("logger=%q", logs.String())
	}
	d, _ := sess.Document("level1")
	if d.Map.Height != 7 || !d.Dirty {
		t.Fatalf("height=%d dirty=%v", d.Map.Height, d.Dirty)
	}
}

func TestRun_ActionErrorsAreCatchable(t *testing.T) {
	h, _, _ := newHost(t, 2*time.Second)
	src := `
var msg = "";
try { tiled.trigger("Bogus"); } catch (e) { msg = String(e); }
var empty = tiled.activeMap.tileAt("ground", 0, 0);
[msg, empty === null, tiled.actions().indexOf("DeleteColsAt") >= 0];
`
	res, err := h.Run(context.Background(), "err.js", src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, ok := res.Value.([]any)
	if !ok || len(got) != 3 {
		t.Fatalf("value=%#v", res.Value)
	}
	if !strings.Contains(got[0].(string), "unknown action") || got[1] != true || got[2] != true {
		t.Fatalf("value=%#v", got)
	}

	if _, err := h.Run(context.Background(), "bad.js", `tiled.activeMap.tileAt("nope", 0, 0)`); err == nil {
		t.Fatalf("expected error for missing layer")
	}
	if _, err := h.Run(context.Background(), "syntax.js", `var = ;`); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestRun_TimeoutInterruptsScript(t *testing.T) {
	h, _, _ := newHost(t, 50*time.Millisecond)
	start := time.Now()
	_, err := h.Run(context.Background(), "spin.js", `for (;;) {}`)
	if !errors.Is(err, ErrScriptTimeout) {
		t.Fatalf("err=%v want ErrScriptTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("interrupt took %v", time.Since(start))
	}
}

func TestRun_NoActiveMap(t *testing.T) {
	h := New(editor.New(editor.Config{}), Config{})
	res, err := h.Run(context.Background(), "none.js", `tiled.activeMap === null`)
	if err != nil || res.Value != true {
		t.Fatalf("value=%#v err=%v", res.Value, err)
	}
}

func TestRunFileAndList(t *testing.T) {
	h, _, _ := newHost(t, time.Second)
	dir := t.TempDir()
	for _, name := range []string{"b.js", "a.js", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(`tiled.activeMap.width * 2`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	files, err := List(dir)
	if err != nil || len(files) != 2 || filepath.Base(files[0]) != "a.js" {
		t.Fatalf("files=%v err=%v", files, err)
	}
	res, err := h.RunFile(context.Background(), files[1])
	if err != nil || res.Value != int64(10) {
		t.Fatalf("value=%#v err=%v", res.Value, err)
	}
}
