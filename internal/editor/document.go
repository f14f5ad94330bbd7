package editor

import (
	"path/filepath"
	"strings"

	"tileforge.dev/internal/persistence/snapshot"
	"tileforge.dev/internal/tilemap"
)

// Document is an open map. It implements actions.Host for the layer and
// tileset shortcut actions.
type Document struct {
	ID       string
	Path     string
	Map      *tilemap.Map
	Revision int
	Dirty    bool

	currentLayer   int
	currentTileset *tilemap.Tileset
}

func (d *Document) SetCurrentLayer(l tilemap.Layer) {
	if l != nil {
		d.currentLayer = l.Info().ID
	}
}

func (d *Document) SetCurrentTileset(ts *tilemap.Tileset) { d.currentTileset = ts }

// CurrentLayer returns the current layer, looked up by id so it stays
// valid across undo.
func (d *Document) CurrentLayer() tilemap.Layer {
	var found tilemap.Layer
	d.Map.Walk(func(l tilemap.Layer, _ int) tilemap.Visit {
		if l.Info().ID == d.currentLayer {
			found = l
			return tilemap.Stop
		}
		return tilemap.Continue
	})
	return found
}

func (d *Document) CurrentTileset() *tilemap.Tileset { return d.currentTileset }

type DocumentInfo struct {
	ID       string       `json:"id"`
	Path     string       `json:"path,omitempty"`
	Size     tilemap.Size `json:"size"`
	Infinite bool         `json:"infinite"`
	Revision int          `json:"revision"`
	Dirty    bool         `json:"dirty"`
	Layers   int          `json:"layers"`
}

func (d *Document) info() DocumentInfo {
	return DocumentInfo{
		ID:       d.ID,
		Path:     d.Path,
		Size:     d.Map.Size(),
		Infinite: d.Map.Infinite,
		Revision: d.Revision,
		Dirty:    d.Dirty,
		Layers:   len(d.Map.TileLayers()),
	}
}

// DocIDFromPath derives a document id from its file name.
func DocIDFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, snapshot.Ext)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
