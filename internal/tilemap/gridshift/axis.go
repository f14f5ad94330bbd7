package gridshift

import "tileforge.dev/internal/tilemap"

// axis maps the shared algorithm onto rows or columns. "a" is the
// coordinate along the shifting axis, "c" the one across it.
type axis struct {
	insertOp Op
	deleteOp Op

	span     func(r tilemap.Rect) Span
	cross    func(r tilemap.Rect) Span
	grow     func(sz tilemap.Size, by int) tilemap.Size
	read     func(l *tilemap.TileLayer, a, c int) tilemap.Cell
	write    func(e *tilemap.TileLayerEdit, a, c int, cell tilemap.Cell)
	cellSize func(m *tilemap.Map) int
	coord    func(o *tilemap.MapObject) *float64
}

var byRow = axis{
	insertOp: InsertRowsOp,
	deleteOp: DeleteRowsOp,
	span:     func(r tilemap.Rect) Span { return Span{Start: r.Y, Extent: r.H} },
	cross:    func(r tilemap.Rect) Span { return Span{Start: r.X, Extent: r.W} },
	grow: func(sz tilemap.Size, by int) tilemap.Size {
		return tilemap.Size{W: sz.W, H: sz.H + by}
	},
	read:     func(l *tilemap.TileLayer, a, c int) tilemap.Cell { return l.CellAt(c, a) },
	write:    func(e *tilemap.TileLayerEdit, a, c int, cell tilemap.Cell) { e.SetCell(c, a, cell) },
	cellSize: func(m *tilemap.Map) int { return m.TileHeight },
	coord:    func(o *tilemap.MapObject) *float64 { return &o.Y },
}

var byCol = axis{
	insertOp: InsertColumnsOp,
	deleteOp: DeleteColumnsOp,
	span:     func(r tilemap.Rect) Span { return Span{Start: r.X, Extent: r.W} },
	cross:    func(r tilemap.Rect) Span { return Span{Start: r.Y, Extent: r.H} },
	grow: func(sz tilemap.Size, by int) tilemap.Size {
		return tilemap.Size{W: sz.W + by, H: sz.H}
	},
	read:     func(l *tilemap.TileLayer, a, c int) tilemap.Cell { return l.CellAt(a, c) },
	write:    func(e *tilemap.TileLayerEdit, a, c int, cell tilemap.Cell) { e.SetCell(a, c, cell) },
	cellSize: func(m *tilemap.Map) int { return m.TileWidth },
	coord:    func(o *tilemap.MapObject) *float64 { return &o.X },
}
