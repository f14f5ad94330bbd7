package actions

import (
	"strings"

	"tileforge.dev/internal/tilemap"
)

// ShortcutProperty is the custom property that binds a tileset or layer to
// a selection shortcut.
const ShortcutProperty = "shortcut"

const (
	tilesetPrefix = "tileset_"
	layerPrefix   = "layer_"
)

// RegisterTilesetShortcuts adds a "tileset_<shortcut>" action for every
// tileset of m carrying a shortcut property. Triggering it makes the
// tileset current on the host. Shortcuts already registered are skipped.
func RegisterTilesetShortcuts(r *Registry, m *tilemap.Map) []string {
	var added []string
	for _, ts := range m.Tilesets {
		sc := strings.TrimSpace(ts.Properties[ShortcutProperty])
		if sc == "" {
			continue
		}
		ts := ts
		a := Action{
			ID:       tilesetPrefix + sc,
			Text:     "Select " + ts.Name + " tileset",
			Shortcut: sc,
			Run: func(ctx Context) (Result, error) {
				if ctx.Host == nil {
					return Result{}, nil
				}
				ctx.Host.SetCurrentTileset(ts)
				return Result{Applied: true, Message: ts.Name}, nil
			},
		}
		if r.Register(a) != nil {
			continue
		}
		r.ExtendMenu("Map", MenuItem{Action: a.ID, Before: AddExternalTileset})
		added = append(added, a.ID)
	}
	return added
}

// RegisterLayerShortcuts adds a "layer_<shortcut>" action for every layer
// of m, nested ones included, carrying a shortcut property. The layer is
// looked up by id when triggered, so the action survives undo.
func RegisterLayerShortcuts(r *Registry, m *tilemap.Map) []string {
	var added []string
	m.Walk(func(l tilemap.Layer, _ int) tilemap.Visit {
		info := l.Info()
		sc := strings.TrimSpace(info.Properties[ShortcutProperty])
		if sc == "" {
			return tilemap.Continue
		}
		id, name := info.ID, info.Name
		a := Action{
			ID:       layerPrefix + sc,
			Text:     "Select " + name + " layer",
			Shortcut: sc,
			Run: func(ctx Context) (Result, error) {
				if ctx.Host == nil || ctx.Map == nil {
					return Result{}, nil
				}
				target := layerByID(ctx.Map, id)
				if target == nil {
					return Result{}, nil
				}
				ctx.Host.SetCurrentLayer(target)
				return Result{Applied: true, Message: name}, nil
			},
		}
		if r.Register(a) == nil {
			r.ExtendMenu("Layer", MenuItem{Action: a.ID, Before: SelectPreviousLayer})
			added = append(added, a.ID)
		}
		return tilemap.Continue
	})
	return added
}

// ClearLayerShortcuts removes every layer shortcut action. Hosts call it
// when the active map changes.
func ClearLayerShortcuts(r *Registry) int {
	n := 0
	for _, a := range r.List() {
		if strings.HasPrefix(a.ID, layerPrefix) && r.Unregister(a.ID) {
			n++
		}
	}
	return n
}

func layerByID(m *tilemap.Map, id int) tilemap.Layer {
	var found tilemap.Layer
	m.Walk(func(l tilemap.Layer, _ int) tilemap.Visit {
		if l.Info().ID == id {
			found = l
			return tilemap.Stop
		}
		return tilemap.Continue
	})
	return found
}
