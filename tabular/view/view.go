// Package view provides read-only projections over a FactStore. A Direct view
// exposes the store row-major; a Transposed view swaps the entity and attribute
// axes of any other view and can be nested without limit.
package view

import (
	"context"

	"github.com/wbrown/janus-tabular/tabular"
)

// View is the capability every dataset projection implements
type View interface {
	// Kind names the variant ("direct" or "transposed")
	Kind() string

	// Entities returns a fresh, interruptible iterator over the row identifiers
	Entities(ctx context.Context) (tabular.EntityIterator, error)

	// Columns returns the cells of one row; an unknown row has no cells
	Columns(ctx context.Context, entity tabular.Entity) ([]tabular.Cell, error)

	// Pin returns a view whose reads all observe the same committed state
	Pin(ctx context.Context) (View, error)

	// Check fails with ErrDanglingView once the source has been released
	Check() error
}

// Releaser is implemented by views that hold resources of their own
type Releaser interface {
	Release()
}

// Describe renders the composition of v, e.g. "transposed(direct)"
func Describe(v View) string {
	if t, ok := v.(*Transposed); ok {
		return "transposed(" + Describe(t.inner) + ")"
	}
	return v.Kind()
}

// Depth returns the number of transpositions stacked on top of the store
func Depth(v View) int {
	d := 0
	for {
		t, ok := v.(*Transposed)
		if !ok {
			return d
		}
		d++
		v = t.inner
	}
}
