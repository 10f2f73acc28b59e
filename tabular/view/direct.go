package view

import (
	"context"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/storage"
)

// Direct is the row-major passthrough over a FactStore. It borrows the store;
// releasing the store leaves the view dangling.
type Direct struct {
	store  *storage.FactStore
	pinned *storage.Snapshot
}

// NewDirect wraps store. Reads follow the latest commit until pinned.
func NewDirect(store *storage.FactStore) *Direct {
	return &Direct{store: store}
}

// Store returns the borrowed store
func (d *Direct) Store() *storage.FactStore {
	return d.store
}

func (d *Direct) Kind() string { return "direct" }

func (d *Direct) snapshot() storage.Snapshot {
	if d.pinned != nil {
		return *d.pinned
	}
	return d.store.Snapshot()
}

// Entities delegates to the store
func (d *Direct) Entities(ctx context.Context) (tabular.EntityIterator, error) {
	return d.snapshot().Entities(ctx)
}

// Columns returns the store's facts for entity unchanged
func (d *Direct) Columns(ctx context.Context, entity tabular.Entity) ([]tabular.Cell, error) {
	return d.snapshot().Facts(ctx, entity)
}

// Pin fixes the store epoch for the returned view
func (d *Direct) Pin(ctx context.Context) (View, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	sn := d.snapshot()
	return &Direct{store: d.store, pinned: &sn}, nil
}

// Epoch returns the epoch reads currently observe
func (d *Direct) Epoch() uint64 {
	return d.snapshot().Epoch()
}

func (d *Direct) Check() error {
	return d.store.Check()
}
