package brush

import "tileforge.dev/internal/tilemap"

// Tool is the rectangle painting tool. Move the cursor to update the
// preview, Press to anchor the drag on a tile layer and Release to paint.
type Tool struct {
	Brush *tilemap.TileLayer

	cursor  tilemap.Point
	anchor  *tilemap.Point
	target  *tilemap.TileLayer
	preview *tilemap.TileLayer
}

func NewTool(b *tilemap.TileLayer) *Tool { return &Tool{Brush: b} }

func (t *Tool) usable() bool {
	return t.Brush != nil && t.Brush.Width() >= 1 && t.Brush.Height() >= 1
}

// Move updates the cursor position and recomputes the preview.
func (t *Tool) Move(p tilemap.Point) {
	t.cursor = p
	if !t.usable() {
		return
	}
	t.preview = Render(t.Brush, Area(t.Brush.Size(), t.anchor, p))
}

// Preview returns the cells that a release would paint, or nil.
func (t *Tool) Preview() *tilemap.TileLayer { return t.preview }

func (t *Tool) Dragging() bool { return t.anchor != nil }

// Press anchors the drag at the current cursor position on l.
func (t *Tool) Press(l tilemap.Layer) error {
	tl, ok := l.(*tilemap.TileLayer)
	if !ok || tl == nil {
		return ErrNotTileLayer
	}
	if !t.usable() {
		return ErrNoBrush
	}
	p := t.cursor
	t.anchor = &p
	t.target = tl
	t.Move(p)
	return nil
}

// Release ends the drag and merges the preview into the pressed layer as
// one undoable edit on m. It returns the number of cells written.
func (t *Tool) Release(m *tilemap.Map) (int, error) {
	target, preview := t.target, t.preview
	t.anchor, t.target, t.preview = nil, nil, nil
	if target == nil || preview == nil || preview.Len() == 0 {
		return 0, nil
	}
	n := 0
	err := m.Macro(MacroName, func() error {
		n = Merge(target, preview)
		return nil
	})
	t.Move(t.cursor)
	return n, err
}
