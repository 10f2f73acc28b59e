package tabular

import (
	"context"
)

// EntityIterator provides sequential, interruptible access to entity identifiers.
// Each call to a view's or store's Entities returns a fresh iterator, so the
// sequence is restartable.
type EntityIterator interface {
	Next() bool
	Entity() Entity
	Err() error
	Close() error
}

// sliceIterator iterates over a pre-computed slice
type sliceIterator struct {
	ctx      context.Context
	entities []Entity
	pos      int
	err      error
}

// NewSliceIterator iterates entities in slice order, stopping early if ctx is done.
// The slice is not copied and must not be mutated while iterating.
func NewSliceIterator(ctx context.Context, entities []Entity) EntityIterator {
	if ctx == nil {
		ctx = context.Background()
	}
	return &sliceIterator{ctx: ctx, entities: entities, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	return it.pos < len(it.entities)
}

func (it *sliceIterator) Entity() Entity {
	if it.pos >= 0 && it.pos < len(it.entities) {
		return it.entities[it.pos]
	}
	return ""
}

func (it *sliceIterator) Err() error   { return it.err }
func (it *sliceIterator) Close() error { return nil }

// CollectEntities drains an iterator into a slice and closes it
func CollectEntities(it EntityIterator) ([]Entity, error) {
	defer it.Close()

	var out []Entity
	for it.Next() {
		out = append(out, it.Entity())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
