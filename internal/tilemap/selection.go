package tilemap

// SelectedArea is the map's current tile selection: a set of rects whose
// bounding box is what most actions operate on.
type SelectedArea struct {
	rects     []Rect
	listeners map[int]func(old, cur []Rect)
	nextID    int
}

// Get returns a copy of the selected rects.
func (s *SelectedArea) Get() []Rect {
	if len(s.rects) == 0 {
		return nil
	}
	out := make([]Rect, len(s.rects))
	copy(out, s.rects)
	return out
}

// Set replaces the selection. Empty rects are discarded; nil clears it.
func (s *SelectedArea) Set(rects []Rect) {
	old := s.rects
	var cur []Rect
	for _, r := range rects {
		if !r.Empty() {
			cur = append(cur, r)
		}
	}
	s.rects = cur
	if sameRects(old, cur) {
		return
	}
	for _, fn := range s.listeners {
		fn(old, s.Get())
	}
}

func (s *SelectedArea) SetRect(r Rect) { s.Set([]Rect{r}) }

func (s *SelectedArea) Clear() { s.Set(nil) }

func (s *SelectedArea) IsEmpty() bool { return len(s.rects) == 0 }

// BoundingRect is the union of all selected rects.
func (s *SelectedArea) BoundingRect() Rect {
	var r Rect
	for _, sr := range s.rects {
		r = r.Union(sr)
	}
	return r
}

// OnChange registers fn to be called after every selection change. The
// returned func removes the listener.
func (s *SelectedArea) OnChange(fn func(old, cur []Rect)) func() {
	if s.listeners == nil {
		s.listeners = map[int]func(old, cur []Rect){}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() { delete(s.listeners, id) }
}

func sameRects(a, b []Rect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
