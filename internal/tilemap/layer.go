package tilemap

import "sort"

type Kind int

const (
	KindTile Kind = iota + 1
	KindObject
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindTile:
		return "tile"
	case KindObject:
		return "object"
	case KindGroup:
		return "group"
	}
	return "unknown"
}

// LayerInfo is the data shared by every layer kind.
type LayerInfo struct {
	ID         int
	Name       string
	Visible    bool
	Properties Properties
}

func (li *LayerInfo) Info() *LayerInfo { return li }

// Layer is implemented by *GroupLayer, *TileLayer and *ObjectLayer only.
type Layer interface {
	Info() *LayerInfo
	Kind() Kind
	clone() Layer
}

// GroupLayer is a container of other layers. It holds no cells itself.
type GroupLayer struct {
	LayerInfo
	Layers []Layer
}

func NewGroupLayer(name string) *GroupLayer {
	return &GroupLayer{LayerInfo: LayerInfo{Name: name, Visible: true}}
}

func (g *GroupLayer) Kind() Kind { return KindGroup }

func (g *GroupLayer) AddLayer(l Layer) { g.Layers = append(g.Layers, l) }

func (g *GroupLayer) clone() Layer {
	out := &GroupLayer{LayerInfo: g.LayerInfo.cloneInfo()}
	out.Layers = cloneLayers(g.Layers)
	return out
}

// TileLayer is a grid of cells. Populated cells are stored sparsely; a
// bounded layer drops writes outside [0,width) x [0,height).
type TileLayer struct {
	LayerInfo

	width    int
	height   int
	infinite bool
	cells    map[Point]Cell
}

func NewTileLayer(name string, width, height int) *TileLayer {
	return &TileLayer{
		LayerInfo: LayerInfo{Name: name, Visible: true},
		width:     width,
		height:    height,
		cells:     map[Point]Cell{},
	}
}

func NewInfiniteTileLayer(name string) *TileLayer {
	l := NewTileLayer(name, 0, 0)
	l.infinite = true
	return l
}

func (l *TileLayer) Kind() Kind     { return KindTile }
func (l *TileLayer) Width() int     { return l.width }
func (l *TileLayer) Height() int    { return l.height }
func (l *TileLayer) Infinite() bool { return l.infinite }
func (l *TileLayer) Size() Size     { return Size{W: l.width, H: l.height} }

// Len is the number of populated cells.
func (l *TileLayer) Len() int { return len(l.cells) }

func (l *TileLayer) inBounds(x, y int) bool {
	if l.infinite {
		return true
	}
	return x >= 0 && y >= 0 && x < l.width && y < l.height
}

func (l *TileLayer) CellAt(x, y int) Cell { return l.cells[Point{X: x, Y: y}] }

func (l *TileLayer) TileAt(x, y int) *Tile { return l.cells[Point{X: x, Y: y}].Tile }

func (l *TileLayer) FlagsAt(x, y int) Flags { return l.cells[Point{X: x, Y: y}].Flags }

// Region is the bounding rect of all populated cells.
func (l *TileLayer) Region() Rect {
	var r Rect
	for p := range l.cells {
		r = r.Union(Rect{X: p.X, Y: p.Y, W: 1, H: 1})
	}
	return r
}

// Points returns the populated positions in row-major order.
func (l *TileLayer) Points() []Point {
	out := make([]Point, 0, len(l.cells))
	for p := range l.cells {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func (l *TileLayer) set(x, y int, c Cell) {
	if !l.inBounds(x, y) {
		return
	}
	p := Point{X: x, Y: y}
	if c.Tile == nil {
		delete(l.cells, p)
		return
	}
	l.cells[p] = c
}

func (l *TileLayer) resize(w, h int) {
	l.width, l.height = w, h
	if l.infinite {
		return
	}
	for p := range l.cells {
		if p.X >= w || p.Y >= h {
			delete(l.cells, p)
		}
	}
}

func (l *TileLayer) clone() Layer {
	out := &TileLayer{
		LayerInfo: l.LayerInfo.cloneInfo(),
		width:     l.width,
		height:    l.height,
		infinite:  l.infinite,
		cells:     make(map[Point]Cell, len(l.cells)),
	}
	for p, c := range l.cells {
		out.cells[p] = c
	}
	return out
}

// Edit starts a batched edit. Reads on the layer keep returning the
// pre-edit contents until Apply is called.
func (l *TileLayer) Edit() *TileLayerEdit {
	return &TileLayerEdit{layer: l, pending: map[Point]Cell{}}
}

type TileLayerEdit struct {
	layer   *TileLayer
	pending map[Point]Cell
}

// SetTile queues a write. Later writes to the same cell replace earlier ones.
func (e *TileLayerEdit) SetTile(x, y int, t *Tile, f Flags) {
	if t == nil {
		f = 0
	}
	e.pending[Point{X: x, Y: y}] = Cell{Tile: t, Flags: f}
}

func (e *TileLayerEdit) SetCell(x, y int, c Cell) { e.SetTile(x, y, c.Tile, c.Flags) }

func (e *TileLayerEdit) Clear(x, y int) { e.SetTile(x, y, nil, 0) }

func (e *TileLayerEdit) Pending() int { return len(e.pending) }

func (e *TileLayerEdit) Apply() {
	for p, c := range e.pending {
		e.layer.set(p.X, p.Y, c)
	}
	e.pending = map[Point]Cell{}
}

type Shape int

const (
	ShapeRectangle Shape = iota
	ShapePolygon
	ShapePolyline
	ShapeEllipse
	ShapeText
	ShapePoint
)

// MapObject positions are in pixels.
type MapObject struct {
	ID         int
	Name       string
	Class      string
	Shape      Shape
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Properties Properties
}

type ObjectLayer struct {
	LayerInfo
	Objects []*MapObject
}

func NewObjectLayer(name string) *ObjectLayer {
	return &ObjectLayer{LayerInfo: LayerInfo{Name: name, Visible: true}}
}

func (l *ObjectLayer) Kind() Kind { return KindObject }

func (l *ObjectLayer) AddObject(o *MapObject) { l.Objects = append(l.Objects, o) }

func (l *ObjectLayer) clone() Layer {
	out := &ObjectLayer{LayerInfo: l.LayerInfo.cloneInfo()}
	out.Objects = make([]*MapObject, len(l.Objects))
	for i, o := range l.Objects {
		cp := *o
		cp.Properties = o.Properties.clone()
		out.Objects[i] = &cp
	}
	return out
}

func (li LayerInfo) cloneInfo() LayerInfo {
	li.Properties = li.Properties.clone()
	return li
}

func cloneLayers(ls []Layer) []Layer {
	if ls == nil {
		return nil
	}
	out := make([]Layer, len(ls))
	for i, l := range ls {
		out[i] = l.clone()
	}
	return out
}

// Visit tells Walk how to continue after a layer.
type Visit int

const (
	Continue Visit = iota
	SkipChildren
	Stop
)

// Walk visits layers depth-first in stacking order, descending into groups.
// It reports false if fn returned Stop.
func Walk(layers []Layer, fn func(l Layer, depth int) Visit) bool {
	return walk(layers, 0, fn)
}

func walk(layers []Layer, depth int, fn func(l Layer, depth int) Visit) bool {
	for _, l := range layers {
		switch fn(l, depth) {
		case Stop:
			return false
		case SkipChildren:
			continue
		}
		if g, ok := l.(*GroupLayer); ok {
			if !walk(g.Layers, depth+1, fn) {
				return false
			}
		}
	}
	return true
}
