// Package actions holds the named editor actions that menus, shortcuts,
// scripts and remote clients trigger by id.
package actions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tileforge.dev/internal/settings"
	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/tilemap/gridshift"
)

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrDuplicateAction = errors.New("duplicate action")
	ErrDisabled        = errors.New("action disabled")
)

// Host is the part of the editor an action may drive besides the map.
type Host interface {
	SetCurrentLayer(l tilemap.Layer)
	SetCurrentTileset(ts *tilemap.Tileset)
}

// Context carries the explicit inputs of one action run. Map may be nil
// when no map is open; Host may be nil outside an editor session.
type Context struct {
	Map       *tilemap.Map
	Selection tilemap.Rect
	Host      Host
}

type Result struct {
	Action  string       `json:"action"`
	Applied bool         `json:"applied"`
	Before  tilemap.Size `json:"before"`
	After   tilemap.Size `json:"after"`
	// Span is set by row and column actions.
	Span    *gridshift.Span `json:"span,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Action struct {
	ID       string
	Text     string
	Shortcut string
	Disabled bool
	Run      func(ctx Context) (Result, error)
}

// MenuItem places an action (or a separator) in a named menu. Before names
// an existing entry the item is inserted ahead of; items without Before
// follow the previous item of the same ExtendMenu call.
type MenuItem struct {
	Action    string `json:"action,omitempty"`
	Before    string `json:"before,omitempty"`
	Separator bool   `json:"separator,omitempty"`
}

type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Action
	order []string
	menus map[string][]MenuItem
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Action{}, menus: map[string][]MenuItem{}}
}

func (r *Registry) Register(a Action) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("register: empty action id")
	}
	if a.Run == nil {
		return fmt.Errorf("register %s: nil run func", a.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, a.ID)
	}
	cp := a
	r.byID[a.ID] = &cp
	r.order = append(r.order, a.ID)
	return nil
}

// Unregister removes an action and its menu entries.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for name, items := range r.menus {
		kept := items[:0]
		for _, it := range items {
			if it.Action != id {
				kept = append(kept, it)
			}
		}
		r.menus[name] = kept
	}
	return true
}

func (r *Registry) Lookup(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// List returns the registered actions in registration order.
func (r *Registry) List() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// IDs returns the registered action ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// ByShortcut finds the enabled action bound to a shortcut, ignoring case.
func (r *Registry) ByShortcut(shortcut string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		a := r.byID[id]
		if !a.Disabled && a.Shortcut != "" && strings.EqualFold(a.Shortcut, shortcut) {
			return *a, true
		}
	}
	return Action{}, false
}

// Trigger runs the action id with explicit parameters.
func (r *Registry) Trigger(id string, ctx Context) (Result, error) {
	a, ok := r.Lookup(id)
	if !ok {
		return Result{Action: id}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	if a.Disabled {
		return Result{Action: id}, fmt.Errorf("%w: %s", ErrDisabled, id)
	}
	res, err := a.Run(ctx)
	res.Action = id
	return res, err
}

// ApplyOverrides replaces labels and shortcuts from settings. It returns
// the override ids that match no registered action.
func (r *Registry) ApplyOverrides(ov map[string]settings.ActionOverride) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var unknown []string
	for id, o := range ov {
		a, ok := r.byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if o.Text != "" {
			a.Text = o.Text
		}
		if o.Shortcut != "" {
			a.Shortcut = o.Shortcut
		}
		a.Disabled = o.Disabled
	}
	sort.Strings(unknown)
	return unknown
}

// ExtendMenu adds items to the named menu.
func (r *Registry) ExtendMenu(menu string, items ...MenuItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.menus[menu]
	at := len(cur)
	for _, it := range items {
		if it.Before != "" {
			at = len(cur)
			for i, e := range cur {
				if e.Action == it.Before {
					at = i
					break
				}
			}
		}
		cur = append(cur, MenuItem{})
		copy(cur[at+1:], cur[at:])
		cur[at] = it
		at++
	}
	r.menus[menu] = cur
}

// Menu returns the items of a menu in display order.
func (r *Registry) Menu(menu string) []MenuItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]MenuItem(nil), r.menus[menu]...)
}
