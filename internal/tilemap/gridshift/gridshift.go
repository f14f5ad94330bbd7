// Package gridshift inserts and deletes whole rows or columns of a map at a
// selection. Cells on every tile layer are shifted, point objects after the
// affected span are moved by the same amount, and bounded maps grow or
// shrink to match.
//
// Inputs that cannot affect any cell are silent no-ops: no macro is
// recorded and the map is left untouched.
package gridshift

import "tileforge.dev/internal/tilemap"

type Op int

const (
	InsertRowsOp Op = iota + 1
	DeleteRowsOp
	InsertColumnsOp
	DeleteColumnsOp
)

func (op Op) String() string {
	switch op {
	case InsertRowsOp:
		return "Insert Rows"
	case DeleteRowsOp:
		return "Delete Rows"
	case InsertColumnsOp:
		return "Insert Columns"
	case DeleteColumnsOp:
		return "Delete Columns"
	}
	return "Unknown"
}

// Span is a run of rows or columns.
type Span struct {
	Start  int `json:"start"`
	Extent int `json:"extent"`
}

func (s Span) End() int { return s.Start + s.Extent }

type Result struct {
	Op      Op
	Applied bool
	// Span is the affected rows/columns after clamping or extension.
	Span   Span
	Before tilemap.Size
	After  tilemap.Size
}

func InsertRows(m *tilemap.Map, sel tilemap.Rect) Result    { return insert(m, sel, byRow) }
func DeleteRows(m *tilemap.Map, sel tilemap.Rect) Result    { return remove(m, sel, byRow) }
func InsertColumns(m *tilemap.Map, sel tilemap.Rect) Result { return insert(m, sel, byCol) }
func DeleteColumns(m *tilemap.Map, sel tilemap.Rect) Result { return remove(m, sel, byCol) }

// Apply runs op against m.
func Apply(m *tilemap.Map, op Op, sel tilemap.Rect) Result {
	switch op {
	case InsertRowsOp:
		return InsertRows(m, sel)
	case DeleteRowsOp:
		return DeleteRows(m, sel)
	case InsertColumnsOp:
		return InsertColumns(m, sel)
	case DeleteColumnsOp:
		return DeleteColumns(m, sel)
	}
	return Result{Op: op}
}

// insertSpan adjusts the selected span against the map bounds on the
// shifting axis. It reports false when nothing should happen.
func insertSpan(infinite bool, sel, bounds Span) (Span, bool) {
	if sel.Extent <= 0 {
		return sel, false
	}
	if infinite {
		return sel, true
	}
	switch {
	case sel.Start > bounds.End():
		// Past the far edge: the gap becomes part of the insertion.
		sel.Extent += sel.Start - bounds.End()
		sel.Start = bounds.End()
	case sel.End() <= bounds.Start:
		// Entirely before the near edge: insert enough to reach the map.
		sel.Extent = bounds.Start - sel.Start
		sel.Start = bounds.Start
	case sel.Start < bounds.Start:
		// Straddles the near edge: only the overlapping part counts.
		sel.Extent = sel.End() - bounds.Start
		sel.Start = bounds.Start
	}
	return sel, sel.Extent > 0
}

// deleteSpan clamps the selected span to the map bounds. Spans that miss
// the map, or would consume it entirely, are rejected.
func deleteSpan(sel, bounds Span) (Span, bool) {
	if sel.Extent <= 0 {
		return sel, false
	}
	if sel.Start >= bounds.End() || sel.End() <= bounds.Start {
		return sel, false
	}
	start := max(sel.Start, bounds.Start)
	end := min(sel.End(), bounds.End())
	sel = Span{Start: start, Extent: end - start}
	if sel.Extent < 1 || sel.Extent >= bounds.Extent {
		return sel, false
	}
	return sel, true
}

func insert(m *tilemap.Map, sel tilemap.Rect, ax axis) Result {
	op := ax.insertOp
	if m == nil {
		return Result{Op: op}
	}
	res := Result{Op: op, Before: m.Size(), After: m.Size()}
	bounds := m.Bounds()
	span, ok := insertSpan(m.Infinite, ax.span(sel), ax.span(bounds))
	res.Span = span
	if !ok {
		return res
	}
	far := ax.span(bounds).End()
	cross := ax.cross(bounds)

	_ = m.Macro(op.String(), func() error {
		if !m.Infinite {
			sz := ax.grow(m.Size(), span.Extent)
			m.Resize(sz.W, sz.H)
		}
		saved := m.Selection().Get()
		m.Selection().Clear()

		for _, l := range m.TileLayers() {
			edit := l.Edit()
			// Descending so no source line is overwritten before it is read.
			for a := far - 1; a >= span.Start; a-- {
				for c := cross.Start; c < cross.End(); c++ {
					ax.write(edit, a+span.Extent, c, ax.read(l, a, c))
				}
			}
			for a := span.Start; a < span.End(); a++ {
				for c := cross.Start; c < cross.End(); c++ {
					ax.write(edit, a, c, tilemap.Cell{})
				}
			}
			edit.Apply()
		}
		shiftObjects(m, ax, span.Start, span.Extent)

		m.Selection().Set(saved)
		return nil
	})
	res.Applied = true
	res.After = m.Size()
	return res
}

func remove(m *tilemap.Map, sel tilemap.Rect, ax axis) Result {
	op := ax.deleteOp
	if m == nil {
		return Result{Op: op}
	}
	res := Result{Op: op, Before: m.Size(), After: m.Size()}
	bounds := m.Bounds()
	span, ok := deleteSpan(ax.span(sel), ax.span(bounds))
	res.Span = span
	if !ok {
		return res
	}
	far := ax.span(bounds).End()
	cross := ax.cross(bounds)

	_ = m.Macro(op.String(), func() error {
		saved := m.Selection().Get()
		m.Selection().Clear()

		for _, l := range m.TileLayers() {
			edit := l.Edit()
			for a := span.End(); a < far; a++ {
				for c := cross.Start; c < cross.End(); c++ {
					ax.write(edit, a-span.Extent, c, ax.read(l, a, c))
				}
			}
			if m.Infinite {
				for a := far - span.Extent; a < far; a++ {
					for c := cross.Start; c < cross.End(); c++ {
						ax.write(edit, a, c, tilemap.Cell{})
					}
				}
			}
			edit.Apply()
		}
		shiftObjects(m, ax, span.Start, -span.Extent)

		m.Selection().Set(saved)
		if !m.Infinite {
			sz := ax.grow(m.Size(), -span.Extent)
			m.Resize(sz.W, sz.H)
		}
		return nil
	})
	res.Applied = true
	res.After = m.Size()
	return res
}

// shiftObjects moves every object at or after line start by delta lines.
func shiftObjects(m *tilemap.Map, ax axis, start, delta int) {
	cell := float64(ax.cellSize(m))
	threshold := float64(start) * cell
	offset := float64(delta) * cell
	for _, l := range m.ObjectLayers() {
		for _, o := range l.Objects {
			p := ax.coord(o)
			if *p >= threshold {
				*p += offset
			}
		}
	}
}
