package tilemap

const DefaultUndoLimit = 100

// History is the map's undo stack. Each entry stores the full map state
// before and after one macro.
type History struct {
	Limit int

	entries []historyEntry
	cursor  int
	depth   int
}

type historyEntry struct {
	name   string
	before mapState
	after  mapState
}

type mapState struct {
	width        int
	height       int
	tilesets     []*Tileset
	layers       []Layer
	selection    []Rect
	properties   Properties
	nextLayerID  int
	nextObjectID int
}

func (m *Map) capture() mapState {
	return mapState{
		width:        m.Width,
		height:       m.Height,
		tilesets:     append([]*Tileset(nil), m.Tilesets...),
		layers:       cloneLayers(m.Layers),
		selection:    m.selection.Get(),
		properties:   m.Properties.clone(),
		nextLayerID:  m.NextLayerID,
		nextObjectID: m.NextObjectID,
	}
}

// restore installs a copy of st so the stored state stays untouched.
func (m *Map) restore(st mapState) {
	m.Width = st.width
	m.Height = st.height
	m.Tilesets = append([]*Tileset(nil), st.tilesets...)
	m.Layers = cloneLayers(st.layers)
	m.Properties = st.properties.clone()
	m.NextLayerID = st.nextLayerID
	m.NextObjectID = st.nextObjectID
	m.selection.Set(st.selection)
}

// Macro runs fn as one named, undoable edit. If fn returns an error or
// panics the map is rolled back and nothing is recorded; a panic keeps
// propagating after the rollback. Macros started inside fn join the
// outer one.
//
// Layer and object pointers obtained before an undo, redo or rollback are
// stale afterwards.
func (m *Map) Macro(name string, fn func() error) (err error) {
	h := &m.history
	if h.depth > 0 {
		return fn()
	}
	before := m.capture()
	h.depth++
	committed := false
	defer func() {
		h.depth--
		if committed {
			return
		}
		m.restore(before)
	}()
	if err = fn(); err != nil {
		return err
	}
	committed = true
	h.push(historyEntry{name: name, before: before, after: m.capture()})
	return nil
}

// InMacro reports whether a macro is currently running.
func (m *Map) InMacro() bool { return m.history.depth > 0 }

func (h *History) push(e historyEntry) {
	h.entries = append(h.entries[:h.cursor], e)
	limit := h.Limit
	if limit <= 0 {
		limit = DefaultUndoLimit
	}
	if over := len(h.entries) - limit; over > 0 {
		h.entries = append([]historyEntry(nil), h.entries[over:]...)
	}
	h.cursor = len(h.entries)
}

// Undo reverts the most recent macro. It reports false when there is
// nothing to undo.
func (m *Map) Undo() bool {
	h := &m.history
	if h.depth > 0 || h.cursor == 0 {
		return false
	}
	h.cursor--
	m.restore(h.entries[h.cursor].before)
	return true
}

// Redo re-applies the most recently undone macro.
func (m *Map) Redo() bool {
	h := &m.history
	if h.depth > 0 || h.cursor >= len(h.entries) {
		return false
	}
	m.restore(h.entries[h.cursor].after)
	h.cursor++
	return true
}

func (m *Map) CanUndo() bool { return m.history.cursor > 0 }
func (m *Map) CanRedo() bool { return m.history.cursor < len(m.history.entries) }

// UndoNames lists the names of undoable macros, oldest first.
func (m *Map) UndoNames() []string {
	out := make([]string, 0, m.history.cursor)
	for _, e := range m.history.entries[:m.history.cursor] {
		out = append(out, e.name)
	}
	return out
}

// SetUndoLimit bounds the number of retained macros.
func (m *Map) SetUndoLimit(n int) { m.history.Limit = n }
