package tilemap

// Map is an editable tile map: tilesets, a layer tree, the selected area and
// an undo history.
type Map struct {
	Infinite   bool
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	Properties Properties

	Tilesets []*Tileset
	Layers   []Layer

	NextLayerID  int
	NextObjectID int

	selection SelectedArea
	history   History
}

// New returns a bounded map of w x h cells.
func New(w, h, tileWidth, tileHeight int) *Map {
	return &Map{
		Width:        w,
		Height:       h,
		TileWidth:    tileWidth,
		TileHeight:   tileHeight,
		NextLayerID:  1,
		NextObjectID: 1,
		history:      History{Limit: DefaultUndoLimit},
	}
}

// NewInfinite returns an unbounded map.
func NewInfinite(tileWidth, tileHeight int) *Map {
	m := New(0, 0, tileWidth, tileHeight)
	m.Infinite = true
	return m
}

func (m *Map) Size() Size { return Size{W: m.Width, H: m.Height} }

// NewTileLayer returns a detached tile layer sized for this map.
func (m *Map) NewTileLayer(name string) *TileLayer {
	if m.Infinite {
		return NewInfiniteTileLayer(name)
	}
	return NewTileLayer(name, m.Width, m.Height)
}

// AddLayer appends l at the top level and assigns layer ids to l and any
// layers nested in it that have none.
func (m *Map) AddLayer(l Layer) {
	m.adopt(l)
	m.Layers = append(m.Layers, l)
}

// AddLayerTo appends l to group g, which must already belong to m.
func (m *Map) AddLayerTo(g *GroupLayer, l Layer) {
	m.adopt(l)
	g.AddLayer(l)
}

func (m *Map) adopt(l Layer) {
	Walk([]Layer{l}, func(l Layer, _ int) Visit {
		if info := l.Info(); info.ID == 0 {
			if m.NextLayerID < 1 {
				m.NextLayerID = 1
			}
			info.ID = m.NextLayerID
			m.NextLayerID++
		}
		if tl, ok := l.(*TileLayer); ok && !m.Infinite {
			tl.resize(m.Width, m.Height)
		}
		return Continue
	})
}

// AddObject appends o to layer, assigning an id when o has none.
func (m *Map) AddObject(layer *ObjectLayer, o *MapObject) {
	if o.ID == 0 {
		if m.NextObjectID < 1 {
			m.NextObjectID = 1
		}
		o.ID = m.NextObjectID
		m.NextObjectID++
	} else if o.ID >= m.NextObjectID {
		m.NextObjectID = o.ID + 1
	}
	layer.AddObject(o)
}

func (m *Map) AddTileset(ts *Tileset) { m.Tilesets = append(m.Tilesets, ts) }

// Walk visits the layer tree depth-first.
func (m *Map) Walk(fn func(l Layer, depth int) Visit) { Walk(m.Layers, fn) }

// TileLayers returns every tile layer, descending into groups.
func (m *Map) TileLayers() []*TileLayer {
	var out []*TileLayer
	m.Walk(func(l Layer, _ int) Visit {
		if tl, ok := l.(*TileLayer); ok {
			out = append(out, tl)
		}
		return Continue
	})
	return out
}

// ObjectLayers returns every object layer, descending into groups.
func (m *Map) ObjectLayers() []*ObjectLayer {
	var out []*ObjectLayer
	m.Walk(func(l Layer, _ int) Visit {
		if ol, ok := l.(*ObjectLayer); ok {
			out = append(out, ol)
		}
		return Continue
	})
	return out
}

// LayerByName returns the first leaf layer named name in depth-first order.
func (m *Map) LayerByName(name string) Layer {
	var found Layer
	m.Walk(func(l Layer, _ int) Visit {
		if l.Kind() != KindGroup && l.Info().Name == name {
			found = l
			return Stop
		}
		return Continue
	})
	return found
}

// Bounds is the effective region of the map. Bounded maps report their
// size; infinite maps report the union of populated cells on every tile
// layer, or an empty rect at the origin.
func (m *Map) Bounds() Rect {
	if !m.Infinite {
		return Rect{W: m.Width, H: m.Height}
	}
	var r Rect
	for _, l := range m.TileLayers() {
		r = r.Union(l.Region())
	}
	if r.Empty() {
		return Rect{}
	}
	return r
}

// Resize changes the map size and resizes every tile layer in lockstep.
// Cells outside the new size are dropped. Infinite maps only record the
// nominal size.
func (m *Map) Resize(w, h int) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	m.Width, m.Height = w, h
	if m.Infinite {
		return
	}
	for _, l := range m.TileLayers() {
		l.resize(w, h)
	}
}

func (m *Map) Selection() *SelectedArea { return &m.selection }

// UsedTilesets returns the tilesets referenced by at least one cell, in map
// order.
func (m *Map) UsedTilesets() []*Tileset {
	used := map[*Tileset]bool{}
	for _, l := range m.TileLayers() {
		for _, c := range l.cells {
			if c.Tile != nil {
				used[c.Tile.tileset] = true
			}
		}
	}
	var out []*Tileset
	for _, ts := range m.Tilesets {
		if used[ts] {
			out = append(out, ts)
		}
	}
	return out
}

// RemoveUnusedTilesets drops tilesets no cell refers to, as one undoable
// edit. It returns how many were removed.
func (m *Map) RemoveUnusedTilesets() int {
	used := m.UsedTilesets()
	if len(used) == len(m.Tilesets) {
		return 0
	}
	removed := len(m.Tilesets) - len(used)
	_ = m.Macro("Remove Unused Tilesets", func() error {
		m.Tilesets = used
		return nil
	})
	return removed
}

// Clone returns a deep copy of the map without its undo history. Tilesets
// are shared.
func (m *Map) Clone() *Map {
	out := &Map{
		Infinite:     m.Infinite,
		Width:        m.Width,
		Height:       m.Height,
		TileWidth:    m.TileWidth,
		TileHeight:   m.TileHeight,
		Properties:   m.Properties.clone(),
		Tilesets:     append([]*Tileset(nil), m.Tilesets...),
		Layers:       cloneLayers(m.Layers),
		NextLayerID:  m.NextLayerID,
		NextObjectID: m.NextObjectID,
		history:      History{Limit: m.history.Limit},
	}
	out.selection.rects = m.selection.Get()
	return out
}
