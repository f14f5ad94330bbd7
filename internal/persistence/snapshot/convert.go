package snapshot

import (
	"errors"
	"fmt"

	"tileforge.dev/internal/encoding"
	"tileforge.dev/internal/tilemap"
)

var ErrUnknownTileset = errors.New("snapshot: tile from a tileset not in the map")

// FromMap captures the current state of m. The undo history is not stored.
func FromMap(m *tilemap.Map, h Header) (DocumentV1, error) {
	h.Version = Version
	doc := DocumentV1{
		Header:       h,
		Infinite:     m.Infinite,
		Width:        m.Width,
		Height:       m.Height,
		TileWidth:    m.TileWidth,
		TileHeight:   m.TileHeight,
		Properties:   m.Properties,
		NextLayerID:  m.NextLayerID,
		NextObjectID: m.NextObjectID,
		Selection:    m.Selection().Get(),
	}

	first := map[*tilemap.Tileset]uint32{}
	gid := uint32(1)
	for _, ts := range m.Tilesets {
		first[ts] = gid
		tv := TilesetV1{
			FirstGID:   gid,
			Name:       ts.Name,
			Image:      ts.Image,
			TileWidth:  ts.TileWidth,
			TileHeight: ts.TileHeight,
			Properties: ts.Properties,
			Tiles:      make([]TileV1, 0, ts.TileCount()),
		}
		for _, t := range ts.Tiles() {
			tv.Tiles = append(tv.Tiles, TileV1{Image: t.Image, Properties: t.Properties})
		}
		doc.Tilesets = append(doc.Tilesets, tv)
		gid += uint32(ts.TileCount())
	}

	layers, err := fromLayers(m.Layers, first)
	if err != nil {
		return DocumentV1{}, err
	}
	doc.Layers = layers
	return doc, nil
}

func fromLayers(ls []tilemap.Layer, first map[*tilemap.Tileset]uint32) ([]LayerV1, error) {
	out := make([]LayerV1, 0, len(ls))
	for _, l := range ls {
		info := l.Info()
		lv := LayerV1{ID: info.ID, Name: info.Name, Hidden: !info.Visible, Properties: info.Properties}
		switch l := l.(type) {
		case *tilemap.TileLayer:
			lv.Kind = KindTile
			if err := fromCells(&lv, l, first); err != nil {
				return nil, fmt.Errorf("layer %q: %w", info.Name, err)
			}
		case *tilemap.ObjectLayer:
			lv.Kind = KindObject
			for _, o := range l.Objects {
				lv.Objects = append(lv.Objects, ObjectV1{
					ID: o.ID, Name: o.Name, Class: o.Class, Shape: int(o.Shape),
					X: o.X, Y: o.Y, Width: o.Width, Height: o.Height,
					Properties: o.Properties,
				})
			}
		case *tilemap.GroupLayer:
			lv.Kind = KindGroup
			children, err := fromLayers(l.Layers, first)
			if err != nil {
				return nil, err
			}
			lv.Layers = children
		}
		out = append(out, lv)
	}
	return out, nil
}

func fromCells(lv *LayerV1, l *tilemap.TileLayer, first map[*tilemap.Tileset]uint32) error {
	r := tilemap.R(0, 0, l.Width(), l.Height())
	if l.Infinite() {
		r = l.Region()
	}
	lv.Region = &r
	if r.Empty() {
		return nil
	}
	gids := make([]uint32, 0, r.W*r.H)
	flags := make([]uint32, 0, r.W*r.H)
	for y := r.Top(); y < r.Bottom(); y++ {
		for x := r.Left(); x < r.Right(); x++ {
			c := l.CellAt(x, y)
			if c.Empty() {
				gids = append(gids, 0)
				flags = append(flags, 0)
				continue
			}
			base, ok := first[c.Tile.Tileset()]
			if !ok {
				return ErrUnknownTileset
			}
			gids = append(gids, base+uint32(c.Tile.ID))
			flags = append(flags, uint32(c.Flags))
		}
	}
	lv.GIDs = encoding.EncodeRLE(gids)
	lv.Flags = encoding.EncodeRLE(flags)
	return nil
}

// ToMap rebuilds a live map from doc.
func ToMap(doc DocumentV1) (*tilemap.Map, error) {
	var m *tilemap.Map
	if doc.Infinite {
		m = tilemap.NewInfinite(doc.TileWidth, doc.TileHeight)
	} else {
		m = tilemap.New(doc.Width, doc.Height, doc.TileWidth, doc.TileHeight)
	}
	m.Properties = doc.Properties

	var byGID []gidRange
	for _, tv := range doc.Tilesets {
		ts := tilemap.NewTileset(tv.Name, tv.TileWidth, tv.TileHeight)
		ts.Image = tv.Image
		ts.Properties = tv.Properties
		for _, t := range tv.Tiles {
			ts.AddTile(t.Image).Properties = t.Properties
		}
		m.AddTileset(ts)
		byGID = append(byGID, gidRange{first: tv.FirstGID, ts: ts})
	}

	// Stored ids are kept; layers without one are numbered after them.
	m.NextLayerID = max(m.NextLayerID, doc.NextLayerID)
	for _, lv := range doc.Layers {
		l, err := toLayer(m, lv, byGID)
		if err != nil {
			return nil, err
		}
		m.AddLayer(l)
	}
	m.NextObjectID = max(m.NextObjectID, doc.NextObjectID)
	m.Selection().Set(doc.Selection)
	return m, nil
}

type gidRange struct {
	first uint32
	ts    *tilemap.Tileset
}

func lookupGID(rs []gidRange, gid uint32) *tilemap.Tile {
	for i := len(rs) - 1; i >= 0; i-- {
		if gid >= rs[i].first {
			return rs[i].ts.Tile(int(gid - rs[i].first))
		}
	}
	return nil
}

func toLayer(m *tilemap.Map, lv LayerV1, byGID []gidRange) (tilemap.Layer, error) {
	var l tilemap.Layer
	switch lv.Kind {
	case KindTile:
		tl := m.NewTileLayer(lv.Name)
		if err := toCells(tl, lv, byGID); err != nil {
			return nil, fmt.Errorf("layer %q: %w", lv.Name, err)
		}
		l = tl
	case KindObject:
		ol := tilemap.NewObjectLayer(lv.Name)
		for _, o := range lv.Objects {
			m.AddObject(ol, &tilemap.MapObject{
				ID: o.ID, Name: o.Name, Class: o.Class, Shape: tilemap.Shape(o.Shape),
				X: o.X, Y: o.Y, Width: o.Width, Height: o.Height,
				Properties: o.Properties,
			})
		}
		l = ol
	case KindGroup:
		g := tilemap.NewGroupLayer(lv.Name)
		for _, child := range lv.Layers {
			cl, err := toLayer(m, child, byGID)
			if err != nil {
				return nil, err
			}
			g.AddLayer(cl)
		}
		l = g
	default:
		return nil, fmt.Errorf("layer %q: unknown kind %q", lv.Name, lv.Kind)
	}
	info := l.Info()
	info.ID = lv.ID
	info.Visible = !lv.Hidden
	info.Properties = lv.Properties
	return l, nil
}

func toCells(tl *tilemap.TileLayer, lv LayerV1, byGID []gidRange) error {
	if lv.Region == nil || lv.Region.Empty() {
		return nil
	}
	r := *lv.Region
	n := r.W * r.H
	gids, err := encoding.DecodeRLEN(lv.GIDs, n)
	if err != nil {
		return fmt.Errorf("gids: %w", err)
	}
	flags, err := encoding.DecodeRLEN(lv.Flags, n)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	e := tl.Edit()
	for i, gid := range gids {
		if gid == 0 {
			continue
		}
		t := lookupGID(byGID, gid)
		if t == nil {
			return fmt.Errorf("gid %d has no tile", gid)
		}
		e.SetTile(r.X+i%r.W, r.Y+i/r.W, t, tilemap.Flags(flags[i]))
	}
	e.Apply()
	return nil
}
