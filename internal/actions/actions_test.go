package actions

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tileforge.dev/internal/settings"
	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/tilemap/gridshift"
)

func TestDefault_EditMenuLayout(t *testing.T) {
	r := Default()
	want := []MenuItem{
		{Action: Undo},
		{Action: Redo},
		{Separator: true},
		{Action: InsertRowsAt, Before: Preferences},
		{Action: InsertColsAt},
		{Action: DeleteRowsAt},
		{Action: DeleteColsAt},
		{Separator: true},
		{Action: Preferences},
	}
	if diff := cmp.Diff(want, r.Menu("Edit")); diff != "" {
		t.Fatalf("edit menu (-want +got):\n%s", diff)
	}
	texts := map[string]string{
		InsertRowsAt: "Insert Rows at Selection",
		InsertColsAt: "Insert Columns at Selection",
		DeleteRowsAt: "Delete Selected Rows",
		DeleteColsAt: "Delete Selected Columns",
	}
	for id, text := range texts {
		a, ok := r.Lookup(id)
		if !ok || a.Text != text {
			t.Fatalf("action %s text=%q", id, a.Text)
		}
	}
}

func TestTrigger_RunsWithExplicitContext(t *testing.T) {
	r := Default()
	m := tilemap.New(5, 5, 8, 8)
	m.AddLayer(m.NewTileLayer("ground"))

	res, err := r.Trigger(InsertRowsAt, Context{Map: m, Selection: tilemap.R(0, 1, 5, 2)})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !res.Applied || res.Action != InsertRowsAt || res.After.H != 7 {
		t.Fatalf("result=%+v", res)
	}
	if res.Span == nil || *res.Span != (gridshift.Span{Start: 1, Extent: 2}) {
		t.Fatalf("span=%v", res.Span)
	}

	res, err = r.Trigger(DeleteColsAt, Context{Map: m, Selection: tilemap.R(0, 0, 0, 1)})
	if err != nil || res.Applied || res.Span != nil {
		t.Fatalf("zero-width delete: res=%+v err=%v", res, err)
	}

	res, err = r.Trigger(Undo, Context{Map: m})
	if err != nil || !res.Applied || m.Height != 5 {
		t.Fatalf("undo: res=%+v err=%v h=%d", res, err, m.Height)
	}

	// No open map is a silent no-op.
	if res, err := r.Trigger(DeleteRowsAt, Context{}); err != nil || res.Applied {
		t.Fatalf("nil map: res=%+v err=%v", res, err)
	}
}

func TestTrigger_UnknownAndDisabled(t *testing.T) {
	r := Default()
	if _, err := r.Trigger("Nope", Context{}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err=%v", err)
	}
	unknown := r.ApplyOverrides(map[string]settings.ActionOverride{
		DeleteColsAt: {Disabled: true},
		InsertRowsAt: {Text: "Insert Rows Here", Shortcut: "Ctrl+Shift+R"},
		"Missing":    {Text: "x"},
	})
	if diff := cmp.Diff([]string{"Missing"}, unknown); diff != "" {
		t.Fatalf("unknown overrides:\n%s", diff)
	}
	if _, err := r.Trigger(DeleteColsAt, Context{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v", err)
	}
	a, ok := r.ByShortcut("ctrl+shift+r")
	if !ok || a.ID != InsertRowsAt || a.Text != "Insert Rows Here" {
		t.Fatalf("shortcut lookup=%+v ok=%v", a, ok)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()
	run := func(Context) (Result, error) { return Result{}, nil }
	if err := r.Register(Action{ID: "A", Run: run}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(Action{ID: "A", Run: run}); !errors.Is(err, ErrDuplicateAction) {
		t.Fatalf("err=%v", err)
	}
	if err := r.Register(Action{ID: "B"}); err == nil {
		t.Fatalf("expected error for nil run")
	}
}

func TestRemoveUnusedTilesetsAction(t *testing.T) {
	r := Default()
	m := tilemap.New(2, 2, 8, 8)
	m.AddTileset(tilemap.NewTileset("unused", 8, 8))
	res, err := r.Trigger(RemoveUnusedTilesets, Context{Map: m})
	if err != nil || !res.Applied || len(m.Tilesets) != 0 {
		t.Fatalf("res=%+v err=%v tilesets=%d", res, err, len(m.Tilesets))
	}
	if names := m.UndoNames(); len(names) != 1 || names[0] != "Remove Unused Tilesets" {
		t.Fatalf("undo names=%v", names)
	}
}

type fakeHost struct {
	layer   tilemap.Layer
	tileset *tilemap.Tileset
}

func (h *fakeHost) SetCurrentLayer(l tilemap.Layer)       { h.layer = l }
func (h *fakeHost) SetCurrentTileset(ts *tilemap.Tileset) { h.tileset = ts }

func TestPropertyShortcuts(t *testing.T) {
	r := Default()
	m := tilemap.New(2, 2, 8, 8)
	ts := tilemap.NewTileset("terrain", 8, 8)
	ts.Properties = tilemap.Properties{ShortcutProperty: "F1"}
	m.AddTileset(ts)
	g := tilemap.NewGroupLayer("g")
	m.AddLayer(g)
	detail := m.NewTileLayer("detail")
	detail.Properties = tilemap.Properties{ShortcutProperty: "F2"}
	m.AddLayerTo(g, detail)

	if got := RegisterTilesetShortcuts(r, m); len(got) != 1 || got[0] != "tileset_F1" {
		t.Fatalf("tileset shortcuts=%v", got)
	}
	if got := RegisterLayerShortcuts(r, m); len(got) != 1 || got[0] != "layer_F2" {
		t.Fatalf("layer shortcuts=%v", got)
	}
	a, _ := r.Lookup("layer_F2")
	if a.Text != "Select detail layer" || a.Shortcut != "F2" {
		t.Fatalf("layer action=%+v", a)
	}
	if menu := r.Menu("Layer"); menu[0].Action != "layer_F2" {
		t.Fatalf("layer menu=%v", menu)
	}

	host := &fakeHost{}
	if _, err := r.Trigger("tileset_F1", Context{Map: m, Host: host}); err != nil || host.tileset != ts {
		t.Fatalf("tileset not selected: %v", err)
	}
	if _, err := r.Trigger("layer_F2", Context{Map: m, Host: host}); err != nil || host.layer != tilemap.Layer(detail) {
		t.Fatalf("layer not selected: %v", err)
	}

	if n := ClearLayerShortcuts(r); n != 1 {
		t.Fatalf("cleared=%d", n)
	}
	if _, ok := r.Lookup("layer_F2"); ok {
		t.Fatalf("layer shortcut survived clear")
	}
	if menu := r.Menu("Layer"); len(menu) != 1 {
		t.Fatalf("layer menu after clear=%v", menu)
	}
}
