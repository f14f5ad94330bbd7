package export

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"tileforge.dev/internal/tilemap"
)

var ErrNoTileLayer = errors.New("export: map has no top-level tile layer")

// Videogame writes a tile layer as a matrix of image base names, the map
// format read by the videogame library's Scene.build.
type Videogame struct {
	// Layer selects a top-level tile layer by name. Empty means the last
	// one in stacking order.
	Layer string
}

func init() { Register(Videogame{}) }

func (Videogame) Name() string        { return "videogame" }
func (Videogame) Description() string { return "videogame map format" }
func (Videogame) Extension() string   { return "json" }

func (v Videogame) layer(m *tilemap.Map) *tilemap.TileLayer {
	var found *tilemap.TileLayer
	for _, l := range m.Layers {
		tl, ok := l.(*tilemap.TileLayer)
		if !ok {
			continue
		}
		if v.Layer == "" || tl.Name == v.Layer {
			found = tl
		}
	}
	return found
}

func (v Videogame) Write(w io.Writer, m *tilemap.Map) error {
	l := v.layer(m)
	if l == nil {
		return ErrNoTileLayer
	}
	area := tilemap.R(0, 0, l.Width(), l.Height())
	if l.Infinite() {
		area = l.Region()
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("[\n")
	row := make([]string, 0, area.W)
	for y := area.Top(); y < area.Bottom(); y++ {
		row = row[:0]
		for x := area.Left(); x < area.Right(); x++ {
			id := "  "
			if t := l.TileAt(x, y); t != nil {
				id = baseName(t.ImageFileName())
			}
			row = append(row, `"`+id+`"`)
		}
		bw.WriteString("\t[" + strings.Join(row, ", ") + "],\n")
	}
	bw.WriteString("]\n")
	return bw.Flush()
}
