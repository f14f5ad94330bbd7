// Package brush paints stretched tile rectangles. The brush corners are
// placed once, its edges repeat along one axis and its centre repeats in
// both, so a 3x3 brush can draw a framed box of any size.
package brush

import (
	"errors"

	"tileforge.dev/internal/tilemap"
)

const MacroName = "Paint Tile Rectangle"

var (
	ErrNoBrush      = errors.New("brush: no brush")
	ErrNotTileLayer = errors.New("brush: target is not a tile layer")
)

// Stretch reports along which axes a brush of the given size is repeated.
// A brush one cell wide is only stretched horizontally when it is also one
// cell tall, and the same holds vertically.
func Stretch(sz tilemap.Size) (x, y bool) {
	return sz.W > 1 || sz.H == 1, sz.H > 1 || sz.W == 1
}

// Area returns the cells covered by a drag from anchor to cur. A nil
// anchor means no drag is in progress; the area is then a rectangle
// centred on cur, three cells long on each stretching axis.
func Area(sz tilemap.Size, anchor *tilemap.Point, cur tilemap.Point) tilemap.Rect {
	sx, sy := Stretch(sz)
	start, end := cur, cur
	if anchor != nil {
		if !sx {
			cur.X = anchor.X
		}
		if !sy {
			cur.Y = anchor.Y
		}
		start = tilemap.Point{X: min(anchor.X, cur.X), Y: min(anchor.Y, cur.Y)}
		end = tilemap.Point{X: max(anchor.X, cur.X), Y: max(anchor.Y, cur.Y)}
	} else {
		if sx {
			start.X, end.X = cur.X-1, cur.X+1
		}
		if sy {
			start.Y, end.Y = cur.Y-1, cur.Y+1
		}
	}
	return tilemap.R(start.X, start.Y, end.X-start.X+1, end.Y-start.Y+1)
}

// index maps a position on [start,end] to a brush line of the given size.
func index(pos, start, end, size int) int {
	switch {
	case pos == start:
		return 0
	case pos == end:
		return size - 1
	case size <= 2:
		return min(1, size-1)
	}
	return min((pos-start-1)%(size-2)+1, size-1)
}

// Render fills area with the stretched brush pattern and returns it as a
// new unbounded layer. Empty brush cells stay empty.
func Render(b *tilemap.TileLayer, area tilemap.Rect) *tilemap.TileLayer {
	out := tilemap.NewInfiniteTileLayer("preview")
	if b == nil || b.Width() < 1 || b.Height() < 1 || area.Empty() {
		return out
	}
	e := out.Edit()
	for y := area.Top(); y < area.Bottom(); y++ {
		by := index(y, area.Top(), area.Bottom()-1, b.Height())
		for x := area.Left(); x < area.Right(); x++ {
			bx := index(x, area.Left(), area.Right()-1, b.Width())
			e.SetCell(x, y, b.CellAt(bx, by))
		}
	}
	e.Apply()
	return out
}

// Merge writes every populated cell of src into dst.
func Merge(dst, src *tilemap.TileLayer) int {
	e := dst.Edit()
	for _, p := range src.Points() {
		e.SetCell(p.X, p.Y, src.CellAt(p.X, p.Y))
	}
	n := e.Pending()
	e.Apply()
	return n
}
