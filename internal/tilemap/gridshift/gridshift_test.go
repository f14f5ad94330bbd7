package gridshift

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tileforge.dev/internal/tilemap"
)

type fixture struct {
	m      *tilemap.Map
	ts     *tilemap.Tileset
	ground *tilemap.TileLayer
	detail *tilemap.TileLayer
	objs   *tilemap.ObjectLayer
}

// newFixture builds a bounded w x h map whose ground layer holds tile
// (y*w+x) at every cell, with a nested detail layer and an object layer.
func newFixture(t *testing.T, w, h int) *fixture {
	t.Helper()
	m := tilemap.New(w, h, 16, 8)
	ts := tilemap.NewTileset("ts", 16, 8)
	for i := 0; i < w*h; i++ {
		ts.AddTile(fmt.Sprintf("t%d.png", i))
	}
	m.AddTileset(ts)

	ground := m.NewTileLayer("ground")
	m.AddLayer(ground)
	g := tilemap.NewGroupLayer("deco")
	m.AddLayer(g)
	detail := m.NewTileLayer("detail")
	m.AddLayerTo(g, detail)
	objs := tilemap.NewObjectLayer("objects")
	m.AddLayerTo(g, objs)

	e := ground.Edit()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			e.SetTile(x, y, ts.Tile(y*w+x), 0)
		}
	}
	e.Apply()
	return &fixture{m: m, ts: ts, ground: ground, detail: detail, objs: objs}
}

// grid renders a layer as tile ids, -1 for empty cells.
func grid(l *tilemap.TileLayer, r tilemap.Rect) [][]int {
	out := make([][]int, 0, r.H)
	for y := r.Y; y < r.Bottom(); y++ {
		row := make([]int, 0, r.W)
		for x := r.X; x < r.Right(); x++ {
			if t := l.TileAt(x, y); t != nil {
				row = append(row, t.ID)
			} else {
				row = append(row, -1)
			}
		}
		out = append(out, row)
	}
	return out
}

func row(l *tilemap.TileLayer, y, w int) []int { return grid(l, tilemap.R(0, y, w, 1))[0] }

func emptyRow(w int) []int {
	out := make([]int, w)
	for i := range out {
		out[i] = -1
	}
	return out
}

func TestInsertRows_Example5x5(t *testing.T) {
	f := newFixture(t, 5, 5)
	orig := grid(f.ground, tilemap.R(0, 0, 5, 5))

	res := InsertRows(f.m, tilemap.R(0, 1, 5, 1))
	if !res.Applied {
		t.Fatalf("expected insert to apply")
	}
	if f.m.Height != 6 || f.m.Width != 5 {
		t.Fatalf("size=%dx%d want 5x6", f.m.Width, f.m.Height)
	}
	if res.Before != (tilemap.Size{W: 5, H: 5}) || res.After != (tilemap.Size{W: 5, H: 6}) {
		t.Fatalf("result sizes before=%v after=%v", res.Before, res.After)
	}

	ground := f.m.TileLayers()[0]
	if diff := cmp.Diff(orig[0], row(ground, 0, 5)); diff != "" {
		t.Fatalf("row 0 changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(emptyRow(5), row(ground, 1, 5)); diff != "" {
		t.Fatalf("row 1 not empty (-want +got):\n%s", diff)
	}
	for y := 2; y <= 4; y++ {
		if diff := cmp.Diff(orig[y], row(ground, y+1, 5)); diff != "" {
			t.Fatalf("row %d not moved to %d (-want +got):\n%s", y, y+1, diff)
		}
	}
}

func TestInsertRows_ShiftCorrectness(t *testing.T) {
	const w, h, at, n = 4, 6, 2, 3
	f := newFixture(t, w, h)
	orig := grid(f.ground, tilemap.R(0, 0, w, h))

	InsertRows(f.m, tilemap.R(1, at, 2, n))
	ground := f.m.TileLayers()[0]
	if f.m.Height != h+n {
		t.Fatalf("height=%d want %d", f.m.Height, h+n)
	}
	for y := 0; y < at; y++ {
		if diff := cmp.Diff(orig[y], row(ground, y, w)); diff != "" {
			t.Fatalf("row %d changed:\n%s", y, diff)
		}
	}
	for y := at; y < at+n; y++ {
		if diff := cmp.Diff(emptyRow(w), row(ground, y, w)); diff != "" {
			t.Fatalf("inserted row %d not empty:\n%s", y, diff)
		}
	}
	for y := at; y < h; y++ {
		if diff := cmp.Diff(orig[y], row(ground, y+n, w)); diff != "" {
			t.Fatalf("row %d not at %d:\n%s", y, y+n, diff)
		}
	}
}

func TestInsertRows_ObjectThreshold(t *testing.T) {
	f := newFixture(t, 5, 5)
	th := float64(f.m.TileHeight)
	above := &tilemap.MapObject{Name: "above", X: 3, Y: 2*th - 1}
	at := &tilemap.MapObject{Name: "at", X: 3, Y: 2 * th}
	f.m.AddObject(f.objs, above)
	f.m.AddObject(f.objs, at)

	InsertRows(f.m, tilemap.R(0, 2, 1, 3))

	objs := f.m.ObjectLayers()[0].Objects
	if objs[0].Y != 2*th-1 {
		t.Fatalf("object above insertion moved: y=%v", objs[0].Y)
	}
	if objs[1].Y != 2*th+3*th {
		t.Fatalf("object at insertion y=%v want %v", objs[1].Y, 5*th)
	}
	if objs[0].X != 3 || objs[1].X != 3 {
		t.Fatalf("x changed on row insert")
	}
	if objs[0].ID != above.ID || objs[1].ID != at.ID {
		t.Fatalf("object identity lost")
	}
}

func TestNoOp_ZeroExtent(t *testing.T) {
	f := newFixture(t, 3, 3)
	for name, res := range map[string]Result{
		"insert rows": InsertRows(f.m, tilemap.R(0, 1, 3, 0)),
		"delete rows": DeleteRows(f.m, tilemap.R(0, 1, 3, 0)),
		"insert cols": InsertColumns(f.m, tilemap.R(1, 0, 0, 3)),
		"delete cols": DeleteColumns(f.m, tilemap.R(1, 0, 0, 3)),
	} {
		if res.Applied {
			t.Fatalf("%s: zero extent applied", name)
		}
	}
	if f.m.CanUndo() {
		t.Fatalf("no-op recorded an undo entry")
	}
	if f.m.Width != 3 || f.m.Height != 3 {
		t.Fatalf("size changed: %dx%d", f.m.Width, f.m.Height)
	}
}

func TestDeleteRows_RejectsWholeMap(t *testing.T) {
	f := newFixture(t, 3, 4)
	before := grid(f.ground, tilemap.R(0, 0, 3, 4))

	for _, sel := range []tilemap.Rect{
		tilemap.R(0, 0, 3, 4),
		tilemap.R(0, -2, 3, 10),
	} {
		if res := DeleteRows(f.m, sel); res.Applied {
			t.Fatalf("delete %v applied on whole map", sel)
		}
	}
	if f.m.Height != 4 || f.m.CanUndo() {
		t.Fatalf("map changed: height=%d", f.m.Height)
	}
	if diff := cmp.Diff(before, grid(f.ground, tilemap.R(0, 0, 3, 4))); diff != "" {
		t.Fatalf("cells changed:\n%s", diff)
	}
}

func TestDelete_OutsideBoundsNoOp(t *testing.T) {
	f := newFixture(t, 3, 3)
	if DeleteRows(f.m, tilemap.R(0, 3, 3, 2)).Applied {
		t.Fatalf("delete below map applied")
	}
	if DeleteRows(f.m, tilemap.R(0, -4, 3, 4)).Applied {
		t.Fatalf("delete above map applied")
	}
	if DeleteColumns(f.m, tilemap.R(5, 0, 1, 3)).Applied {
		t.Fatalf("delete right of map applied")
	}
	if f.m.CanUndo() {
		t.Fatalf("no-op recorded an undo entry")
	}
}

func TestDeleteRows_ClampsToBounds(t *testing.T) {
	f := newFixture(t, 2, 5)
	orig := grid(f.ground, tilemap.R(0, 0, 2, 5))

	res := DeleteRows(f.m, tilemap.R(0, 3, 2, 10))
	if !res.Applied || res.Span != (Span{Start: 3, Extent: 2}) {
		t.Fatalf("result=%+v", res)
	}
	if f.m.Height != 3 {
		t.Fatalf("height=%d want 3", f.m.Height)
	}
	if diff := cmp.Diff(orig[:3], grid(f.m.TileLayers()[0], tilemap.R(0, 0, 2, 3))); diff != "" {
		t.Fatalf("kept rows changed:\n%s", diff)
	}

	res = DeleteRows(f.m, tilemap.R(0, -2, 2, 3))
	if !res.Applied || res.Span != (Span{Start: 0, Extent: 1}) {
		t.Fatalf("result=%+v", res)
	}
	if diff := cmp.Diff(orig[1:3], grid(f.m.TileLayers()[0], tilemap.R(0, 0, 2, 2))); diff != "" {
		t.Fatalf("rows after top clamp:\n%s", diff)
	}
}

func TestDeleteRows_ShiftsUpAndMovesObjects(t *testing.T) {
	f := newFixture(t, 3, 6)
	orig := grid(f.ground, tilemap.R(0, 0, 3, 6))
	th := float64(f.m.TileHeight)
	f.m.AddObject(f.objs, &tilemap.MapObject{Y: 1 * th})
	f.m.AddObject(f.objs, &tilemap.MapObject{Y: 4 * th})

	DeleteRows(f.m, tilemap.R(0, 2, 3, 2))

	ground := f.m.TileLayers()[0]
	want := [][]int{orig[0], orig[1], orig[4], orig[5]}
	if diff := cmp.Diff(want, grid(ground, tilemap.R(0, 0, 3, 4))); diff != "" {
		t.Fatalf("rows after delete:\n%s", diff)
	}
	objs := f.m.ObjectLayers()[0].Objects
	if objs[0].Y != th || objs[1].Y != 2*th {
		t.Fatalf("object ys=%v,%v", objs[0].Y, objs[1].Y)
	}
}

func TestInsertRows_PastFarEdgeFoldsGap(t *testing.T) {
	f := newFixture(t, 2, 5)
	res := InsertRows(f.m, tilemap.R(0, 7, 2, 2))
	if res.Span != (Span{Start: 5, Extent: 4}) {
		t.Fatalf("span=%+v want start=5 extent=4", res.Span)
	}
	if f.m.Height != 9 {
		t.Fatalf("height=%d want 9", f.m.Height)
	}
}

func TestInsertRows_BeforeNearEdge(t *testing.T) {
	f := newFixture(t, 2, 3)
	orig := grid(f.ground, tilemap.R(0, 0, 2, 3))

	res := InsertRows(f.m, tilemap.R(0, -3, 2, 1))
	if res.Span != (Span{Start: 0, Extent: 3}) {
		t.Fatalf("span=%+v", res.Span)
	}
	ground := f.m.TileLayers()[0]
	if f.m.Height != 6 {
		t.Fatalf("height=%d want 6", f.m.Height)
	}
	if diff := cmp.Diff(orig, grid(ground, tilemap.R(0, 3, 2, 3))); diff != "" {
		t.Fatalf("rows not pushed down:\n%s", diff)
	}

	f = newFixture(t, 2, 3)
	res = InsertRows(f.m, tilemap.R(0, -1, 2, 3))
	if res.Span != (Span{Start: 0, Extent: 2}) {
		t.Fatalf("straddling span=%+v want start=0 extent=2", res.Span)
	}
}

func TestRoundTrip_InsertThenDelete(t *testing.T) {
	f := newFixture(t, 4, 4)
	e := f.detail.Edit()
	e.SetTile(1, 2, f.ts.Tile(3), tilemap.FlipHorizontally|tilemap.FlipAntiDiagonally)
	e.Apply()
	f.m.AddObject(f.objs, &tilemap.MapObject{X: 20, Y: 30})
	before := f.m.Clone()

	sel := tilemap.R(0, 1, 4, 2)
	InsertRows(f.m, sel)
	DeleteRows(f.m, sel)
	InsertColumns(f.m, tilemap.R(2, 0, 3, 1))
	DeleteColumns(f.m, tilemap.R(2, 0, 3, 1))

	assertSameMap(t, before, f.m)
}

func TestColumns_Transpose(t *testing.T) {
	f := newFixture(t, 4, 2)
	orig := grid(f.ground, tilemap.R(0, 0, 4, 2))
	tw := float64(f.m.TileWidth)
	f.m.AddObject(f.objs, &tilemap.MapObject{X: 1 * tw, Y: 3})

	InsertColumns(f.m, tilemap.R(1, 0, 2, 1))

	if f.m.Width != 6 || f.m.Height != 2 {
		t.Fatalf("size=%dx%d want 6x2", f.m.Width, f.m.Height)
	}
	ground := f.m.TileLayers()[0]
	want := [][]int{
		{orig[0][0], -1, -1, orig[0][1], orig[0][2], orig[0][3]},
		{orig[1][0], -1, -1, orig[1][1], orig[1][2], orig[1][3]},
	}
	if diff := cmp.Diff(want, grid(ground, tilemap.R(0, 0, 6, 2))); diff != "" {
		t.Fatalf("columns after insert:\n%s", diff)
	}
	o := f.m.ObjectLayers()[0].Objects[0]
	if o.X != 3*tw || o.Y != 3 {
		t.Fatalf("object at (%v,%v)", o.X, o.Y)
	}

	DeleteColumns(f.m, tilemap.R(0, 0, 1, 1))
	if f.m.Width != 5 {
		t.Fatalf("width=%d want 5", f.m.Width)
	}
	if got := f.m.TileLayers()[0].TileAt(2, 0); got == nil || got.ID != orig[0][1] {
		t.Fatalf("column not shifted left: %v", got)
	}
}

func TestDeleteColumns_ClampsLeftEdgeByWidth(t *testing.T) {
	f := newFixture(t, 5, 2)
	res := DeleteColumns(f.m, tilemap.R(-2, 0, 4, 1))
	if !res.Applied || res.Span != (Span{Start: 0, Extent: 2}) {
		t.Fatalf("result=%+v", res)
	}
	if f.m.Width != 3 || f.m.Height != 2 {
		t.Fatalf("size=%dx%d want 3x2", f.m.Width, f.m.Height)
	}
}

func TestMultiLayerSizesStayEqual(t *testing.T) {
	f := newFixture(t, 3, 3)
	ops := []struct {
		op  Op
		sel tilemap.Rect
	}{
		{InsertRowsOp, tilemap.R(0, 1, 1, 2)},
		{InsertColumnsOp, tilemap.R(4, 0, 2, 1)},
		{DeleteRowsOp, tilemap.R(0, 0, 1, 1)},
		{DeleteColumnsOp, tilemap.R(1, 0, 3, 1)},
	}
	for _, tc := range ops {
		Apply(f.m, tc.op, tc.sel)
		for _, l := range f.m.TileLayers() {
			if l.Width() != f.m.Width || l.Height() != f.m.Height {
				t.Fatalf("after %v layer %q is %v, map %dx%d", tc.op, l.Name, l.Size(), f.m.Width, f.m.Height)
			}
		}
	}
}

func TestSelectionRestoredAndSingleUndo(t *testing.T) {
	f := newFixture(t, 4, 4)
	f.m.Selection().Set([]tilemap.Rect{tilemap.R(0, 1, 2, 1), tilemap.R(2, 2, 1, 1)})
	saved := f.m.Selection().Get()

	changes := 0
	f.m.Selection().OnChange(func(old, cur []tilemap.Rect) { changes++ })

	InsertRows(f.m, f.m.Selection().BoundingRect())
	if diff := cmp.Diff(saved, f.m.Selection().Get()); diff != "" {
		t.Fatalf("selection not restored:\n%s", diff)
	}
	if changes != 2 {
		t.Fatalf("selection changes=%d want 2 (clear + restore)", changes)
	}
	if names := f.m.UndoNames(); len(names) != 1 || names[0] != "Insert Rows" {
		t.Fatalf("undo names=%v", names)
	}
	if !f.m.Undo() || f.m.Height != 4 {
		t.Fatalf("undo failed: height=%d", f.m.Height)
	}
}

func TestInfinite_InsertAndDelete(t *testing.T) {
	m := tilemap.NewInfinite(10, 10)
	ts := tilemap.NewTileset("ts", 10, 10)
	a := ts.AddTile("a.png")
	b := ts.AddTile("b.png")
	l := m.NewTileLayer("l")
	m.AddLayer(l)
	e := l.Edit()
	e.SetTile(0, -1, a, 0)
	e.SetTile(1, 0, b, tilemap.FlipVertically)
	e.SetTile(0, 2, a, 0)
	e.Apply()

	res := InsertRows(m, tilemap.R(0, 0, 1, 2))
	if !res.Applied {
		t.Fatalf("infinite insert not applied")
	}
	if m.Width != 0 || m.Height != 0 {
		t.Fatalf("infinite map resized to %dx%d", m.Width, m.Height)
	}
	l = m.TileLayers()[0]
	if l.TileAt(0, -1) != a || l.TileAt(1, 0) != nil || l.TileAt(1, 2) != b || l.FlagsAt(1, 2) != tilemap.FlipVertically || l.TileAt(0, 4) != a {
		t.Fatalf("unexpected cells after insert: %v", l.Points())
	}

	res = DeleteRows(m, tilemap.R(0, 0, 1, 2))
	if !res.Applied {
		t.Fatalf("infinite delete not applied")
	}
	l = m.TileLayers()[0]
	if l.TileAt(1, 0) != b || l.TileAt(0, 2) != a || l.Len() != 3 {
		t.Fatalf("unexpected cells after delete: %v", l.Points())
	}
	for _, p := range l.Points() {
		if p.Y > 2 {
			t.Fatalf("vacated row %d not cleared", p.Y)
		}
	}
}

func TestInfinite_InsertOutsidePopulatedArea(t *testing.T) {
	m := tilemap.NewInfinite(4, 4)
	objs := tilemap.NewObjectLayer("o")
	m.AddLayer(objs)
	m.AddObject(objs, &tilemap.MapObject{Y: 100})

	res := InsertRows(m, tilemap.R(0, 20, 1, 1))
	if !res.Applied {
		t.Fatalf("infinite insert outside populated cells should still apply")
	}
	if got := m.ObjectLayers()[0].Objects[0].Y; got != 100 {
		t.Fatalf("object above insertion moved to %v", got)
	}
}

func assertSameMap(t *testing.T, want, got *tilemap.Map) {
	t.Helper()
	if want.Width != got.Width || want.Height != got.Height {
		t.Fatalf("size %dx%d want %dx%d", got.Width, got.Height, want.Width, want.Height)
	}
	wl, gl := want.TileLayers(), got.TileLayers()
	if len(wl) != len(gl) {
		t.Fatalf("tile layers %d want %d", len(gl), len(wl))
	}
	for i := range wl {
		wp, gp := wl[i].Points(), gl[i].Points()
		if diff := cmp.Diff(wp, gp); diff != "" {
			t.Fatalf("layer %q populated cells (-want +got):\n%s", wl[i].Name, diff)
		}
		for _, p := range wp {
			if wl[i].CellAt(p.X, p.Y) != gl[i].CellAt(p.X, p.Y) {
				t.Fatalf("layer %q cell %v differs", wl[i].Name, p)
			}
		}
	}
	wo, gotObjs := want.ObjectLayers(), got.ObjectLayers()
	for i := range wo {
		for j := range wo[i].Objects {
			if diff := cmp.Diff(*wo[i].Objects[j], *gotObjs[i].Objects[j]); diff != "" {
				t.Fatalf("object differs:\n%s", diff)
			}
		}
	}
}
