package view

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
)

// Options configures a Transposed view
type Options struct {
	// Workers fetching inner rows during the index build (0 = NumCPU)
	Workers int
	// BatchSize is the number of inner rows per worker job (0 = 100)
	BatchSize int
	// Handler receives view/index.* annotations
	Handler annotations.Handler
}

// Transposed swaps the axes of an inner view: its rows are the inner view's
// attributes and its columns are the inner view's entities. It borrows the
// inner view and never copies the store; the attribute index is built on first
// read and then stays fixed for the lifetime of this instance.
type Transposed struct {
	inner     View
	pool      *WorkerPool
	batchSize int
	collector *annotations.Collector

	mu       sync.Mutex // Serializes index builds
	index    atomic.Pointer[transposedIndex]
	builds   atomic.Int32
	released atomic.Bool
}

// transposedIndex maps each inner attribute to the cells that carry it
type transposedIndex struct {
	entities []tabular.Entity
	rows     map[tabular.Entity][]tabular.Cell
	facts    int
}

// NewTransposed wraps inner
func NewTransposed(inner View, opts Options) *Transposed {
	return &Transposed{
		inner:     inner,
		pool:      NewWorkerPool(opts.Workers),
		batchSize: opts.BatchSize,
		collector: annotations.NewCollector(opts.Handler),
	}
}

// Inner returns the borrowed view
func (t *Transposed) Inner() View {
	return t.inner
}

func (t *Transposed) Kind() string { return "transposed" }

// Entities returns each attribute of the inner view exactly once, in natural order
func (t *Transposed) Entities(ctx context.Context) (tabular.EntityIterator, error) {
	idx, err := t.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	return tabular.NewSliceIterator(ctx, idx.entities), nil
}

// Columns returns one cell per inner fact carrying attr, labelled with the
// inner entity
func (t *Transposed) Columns(ctx context.Context, attr tabular.Entity) ([]tabular.Cell, error) {
	idx, err := t.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	row := idx.rows[attr]
	out := make([]tabular.Cell, len(row))
	copy(out, row)
	return out, nil
}

// Pin builds the index if needed. The index is already a snapshot, so the
// view pins itself.
func (t *Transposed) Pin(ctx context.Context) (View, error) {
	if _, err := t.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Check fails once this view or anything beneath it has been released
func (t *Transposed) Check() error {
	if t.released.Load() {
		return tabular.DanglingViewf("transposed view has been released")
	}
	return t.inner.Check()
}

// Release drops the index. Later reads fail with ErrDanglingView.
func (t *Transposed) Release() {
	t.released.Store(true)
	t.index.Store(nil)
}

// Built reports whether the index has been built
func (t *Transposed) Built() bool {
	return t.index.Load() != nil
}

// Builds returns how many times the index has been built (0 or 1)
func (t *Transposed) Builds() int {
	return int(t.builds.Load())
}

// Stats reports the index size; zero before the first read
func (t *Transposed) Stats() (rows, facts int) {
	idx := t.index.Load()
	if idx == nil {
		return 0, 0
	}
	return len(idx.entities), idx.facts
}

// ensureIndex returns the index, building it once. A build interrupted by ctx
// leaves nothing behind, so a later read may try again.
func (t *Transposed) ensureIndex(ctx context.Context) (*transposedIndex, error) {
	if err := t.Check(); err != nil {
		return nil, err
	}
	if idx := t.index.Load(); idx != nil {
		return idx, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx := t.index.Load(); idx != nil {
		return idx, nil
	}
	idx, err := t.build(ctx)
	if err != nil {
		return nil, err
	}
	if t.released.Load() {
		return nil, tabular.DanglingViewf("transposed view has been released")
	}
	t.index.Store(idx)
	t.builds.Add(1)
	return idx, nil
}

func (t *Transposed) build(ctx context.Context) (*transposedIndex, error) {
	start := time.Now()
	depth := Depth(t)
	if t.collector.Enabled() {
		t.collector.Add(annotations.Event{
			Name:  annotations.ViewIndexBuilding,
			Start: start,
			End:   start,
			Data:  map[string]interface{}{"depth": depth},
		})
	}

	src, err := t.inner.Pin(ctx)
	if err != nil {
		return nil, err
	}
	it, err := src.Entities(ctx)
	if err != nil {
		return nil, err
	}
	inner, err := tabular.CollectEntities(it)
	if err != nil {
		return nil, fmt.Errorf("failed to scan inner view: %w", err)
	}
	tabular.SortEntities(inner)

	rows, err := ExecuteParallelBatched(ctx, t.pool, inner, t.batchSize,
		func(ctx context.Context, batch []tabular.Entity) ([][]tabular.Cell, error) {
			out := make([][]tabular.Cell, len(batch))
			for i, e := range batch {
				cells, err := src.Columns(ctx, e)
				if err != nil {
					return nil, err
				}
				out[i] = cells
			}
			return out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inner rows: %w", err)
	}

	// Fold sequentially in inner-entity order so the index is deterministic
	idx := &transposedIndex{rows: make(map[tabular.Entity][]tabular.Cell)}
	for i, e := range inner {
		for _, c := range rows[i] {
			key := tabular.Entity(c.A)
			if _, seen := idx.rows[key]; !seen {
				idx.entities = append(idx.entities, key)
			}
			idx.rows[key] = append(idx.rows[key], tabular.Cell{A: tabular.Attribute(e), V: c.V, T: c.T})
			idx.facts++
		}
	}
	tabular.SortEntities(idx.entities)

	if t.collector.Enabled() {
		t.collector.AddTiming(annotations.ViewIndexBuilt, start, map[string]interface{}{
			"depth":         depth,
			"inner.rows":    len(inner),
			"index.rows":    len(idx.entities),
			"facts.count":   idx.facts,
			"workers.count": t.pool.WorkerCount(),
		})
	}
	return idx, nil
}
