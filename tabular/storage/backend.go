package storage

import (
	"context"

	"github.com/wbrown/janus-tabular/tabular"
)

// Backend holds committed facts, each stamped with the epoch of the commit that
// published it. A reader pinned at epoch N sees exactly the facts whose epoch is
// at most N, which is what makes a commit atomic for readers regardless of how
// the backend writes.
type Backend interface {
	// Append writes the batches under epoch. Epochs are strictly increasing.
	// On failure the backend must keep every fact of epoch invisible.
	Append(epoch uint64, batches []Batch) error

	// Entities iterates the entities having at least one fact visible at epoch.
	// The order is unspecified: memory yields natural order, badger yields key
	// order (length prefix first). Callers needing an order sort.
	Entities(ctx context.Context, epoch uint64) (tabular.EntityIterator, error)

	// Facts returns the cells of entity visible at epoch, in append order
	Facts(ctx context.Context, entity tabular.Entity, epoch uint64) ([]tabular.Cell, error)

	// Stats reports what the backend holds across all epochs
	Stats() BackendStats

	Close() error
}

// BackendStats summarizes backend contents
type BackendStats struct {
	Kind        string `json:"kind"`
	Entities    int    `json:"entities"`
	Facts       int    `json:"facts"`
	ApproxBytes int64  `json:"approxBytes"`
}

// cellSize approximates the memory held by one stored cell
func cellSize(c tabular.Cell) int64 {
	const fixed = 8 + 24 + 16 + 24 // epoch, value header, attribute header, timestamp
	s, _ := c.V.AsString()
	return int64(fixed + len(c.A) + len(s))
}
