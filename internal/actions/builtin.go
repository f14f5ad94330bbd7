package actions

import (
	"fmt"

	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/tilemap/gridshift"
)

const (
	InsertRowsAt         = "InsertRowsAt"
	DeleteRowsAt         = "DeleteRowsAt"
	InsertColsAt         = "InsertColsAt"
	DeleteColsAt         = "DeleteColsAt"
	RemoveUnusedTilesets = "RemoveUnusedTilesets"
	Undo                 = "Undo"
	Redo                 = "Redo"
)

// Entries the host menus carry before any action is added.
const (
	Preferences         = "Preferences"
	AddExternalTileset  = "AddExternalTileset"
	SelectPreviousLayer = "SelectPreviousLayer"
)

// Default returns a registry holding the built-in actions and menus.
func Default() *Registry {
	r := NewRegistry()
	r.ExtendMenu("Edit", MenuItem{Action: Undo}, MenuItem{Action: Redo}, MenuItem{Separator: true}, MenuItem{Action: Preferences})
	r.ExtendMenu("Map", MenuItem{Action: AddExternalTileset})
	r.ExtendMenu("Layer", MenuItem{Action: SelectPreviousLayer})

	mustRegister(r, Action{ID: Undo, Text: "Undo", Shortcut: "Ctrl+Z", Run: func(ctx Context) (Result, error) {
		return history(ctx, (*tilemap.Map).Undo), nil
	}})
	mustRegister(r, Action{ID: Redo, Text: "Redo", Shortcut: "Ctrl+Y", Run: func(ctx Context) (Result, error) {
		return history(ctx, (*tilemap.Map).Redo), nil
	}})
	if err := RegisterGridShift(r); err != nil {
		panic(err)
	}
	mustRegister(r, Action{ID: RemoveUnusedTilesets, Text: "Remove Unused Tilesets", Run: removeUnusedTilesets})
	r.ExtendMenu("Map", MenuItem{Action: RemoveUnusedTilesets, Before: AddExternalTileset})
	return r
}

func mustRegister(r *Registry, a Action) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

func history(ctx Context, step func(*tilemap.Map) bool) Result {
	if ctx.Map == nil {
		return Result{}
	}
	before := ctx.Map.Size()
	ok := step(ctx.Map)
	return Result{Applied: ok, Before: before, After: ctx.Map.Size()}
}

// RegisterGridShift adds the row and column actions and places them in
// the Edit menu ahead of Preferences, followed by a separator.
func RegisterGridShift(r *Registry) error {
	defs := []struct {
		id   string
		text string
		op   gridshift.Op
	}{
		{InsertRowsAt, "Insert Rows at Selection", gridshift.InsertRowsOp},
		{InsertColsAt, "Insert Columns at Selection", gridshift.InsertColumnsOp},
		{DeleteRowsAt, "Delete Selected Rows", gridshift.DeleteRowsOp},
		{DeleteColsAt, "Delete Selected Columns", gridshift.DeleteColumnsOp},
	}
	for _, d := range defs {
		op := d.op
		err := r.Register(Action{ID: d.id, Text: d.text, Run: func(ctx Context) (Result, error) {
			return gridShift(ctx, op), nil
		}})
		if err != nil {
			return err
		}
	}
	r.ExtendMenu("Edit",
		MenuItem{Action: InsertRowsAt, Before: Preferences},
		MenuItem{Action: InsertColsAt},
		MenuItem{Action: DeleteRowsAt},
		MenuItem{Action: DeleteColsAt},
		MenuItem{Separator: true},
	)
	return nil
}

func gridShift(ctx Context, op gridshift.Op) Result {
	if ctx.Map == nil {
		return Result{}
	}
	res := gridshift.Apply(ctx.Map, op, ctx.Selection)
	out := Result{Applied: res.Applied, Before: res.Before, After: res.After}
	if res.Applied {
		span := res.Span
		out.Span = &span
	}
	return out
}

func removeUnusedTilesets(ctx Context) (Result, error) {
	if ctx.Map == nil {
		return Result{}, nil
	}
	sz := ctx.Map.Size()
	n := ctx.Map.RemoveUnusedTilesets()
	return Result{
		Applied: n > 0,
		Before:  sz,
		After:   sz,
		Message: fmt.Sprintf("removed %d tileset(s)", n),
	}, nil
}
