// Package catalog keeps the named datasets of a process: mutable datasets
// owning a FactStore and transposed datasets viewing another dataset.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
	"github.com/wbrown/janus-tabular/tabular/executor"
	"github.com/wbrown/janus-tabular/tabular/storage"
	"github.com/wbrown/janus-tabular/tabular/view"
)

// Options configures a Catalog
type Options struct {
	// Backend is used by mutable datasets that do not name one (default memory)
	Backend string
	// Badger configures badger-backed datasets. A non-empty Dir gets one
	// subdirectory per dataset id.
	Badger storage.BadgerOptions
	// View configures transposed views
	View view.Options
	// Handler receives annotations from every store, view and query
	Handler annotations.Handler
}

// Catalog is a registry of datasets by id. It is safe for concurrent use.
type Catalog struct {
	opts      Options
	engine    *executor.Engine
	collector *annotations.Collector

	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// New creates an empty catalog
func New(opts Options) *Catalog {
	if opts.Backend == "" {
		opts.Backend = BackendMemory
	}
	if opts.View.Handler == nil {
		opts.View.Handler = opts.Handler
	}
	return &Catalog{
		opts:      opts,
		engine:    executor.NewEngine(executor.Options{Handler: opts.Handler}),
		collector: annotations.NewCollector(opts.Handler),
		datasets:  make(map[string]*Dataset),
	}
}

// Dataset is one registered dataset
type Dataset struct {
	ID      string
	Type    string // TypeMutable or TypeTransposed
	Created time.Time

	view  view.View
	store *storage.FactStore // nil unless mutable
	inner string             // id of the viewed dataset, transposed only
}

// View returns the dataset's read surface
func (d *Dataset) View() view.View {
	return d.view
}

// Store returns the owned store, or nil for a transposed dataset
func (d *Dataset) Store() *storage.FactStore {
	return d.store
}

// RecordRow buffers cells for entity in a mutable dataset
func (d *Dataset) RecordRow(entity tabular.Entity, cells []tabular.Cell) error {
	if d.store == nil {
		return tabular.InvalidArgumentf("dataset %q is %s and cannot record rows", d.ID, d.Type)
	}
	return d.store.RecordRow(entity, cells)
}

// RecordBatches buffers several rows at once
func (d *Dataset) RecordBatches(batches []storage.Batch) error {
	if d.store == nil {
		return tabular.InvalidArgumentf("dataset %q is %s and cannot record rows", d.ID, d.Type)
	}
	return d.store.RecordBatches(batches)
}

// Commit publishes everything recorded into a mutable dataset
func (d *Dataset) Commit() (uint64, error) {
	if d.store == nil {
		return 0, tabular.InvalidArgumentf("dataset %q is %s and cannot be committed", d.ID, d.Type)
	}
	return d.store.Commit()
}

// Create validates cfg, resolves nested configs and registers every dataset it
// declares. Nothing is registered unless the whole config resolves.
func (c *Catalog) Create(ctx context.Context, cfg Config) (*Dataset, error) {
	spec, err := cfg.Spec()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(ctx, spec)
}

// Put creates the dataset under id, replacing any dataset already there
func (c *Catalog) Put(ctx context.Context, id string, cfg Config) (*Dataset, error) {
	if cfg.ID != "" && cfg.ID != id {
		return nil, tabular.InvalidArgumentf("config id %q does not match %q", cfg.ID, id)
	}
	cfg.ID = id
	spec, err := cfg.Spec()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The old dataset survives a failed replacement
	old, replacing := c.datasets[id]
	delete(c.datasets, id)
	d, err := c.createLocked(ctx, spec)
	if err != nil {
		if replacing {
			c.datasets[id] = old
		}
		return nil, err
	}
	if replacing {
		c.release(old)
	}
	return d, nil
}

func (c *Catalog) createLocked(ctx context.Context, spec Spec) (*Dataset, error) {
	// Resolve ids and references before building anything
	planned := make(map[string]bool)
	ids := make(map[Spec]string)
	var resolve func(s Spec) error
	resolve = func(s Spec) error {
		switch s := s.(type) {
		case RefSpec:
			if _, ok := c.datasets[s.ID]; !ok {
				return tabular.NotFoundf("dataset %q does not exist", s.ID)
			}
			return nil
		case TransposedSpec:
			if err := resolve(s.Inner); err != nil {
				return err
			}
		}
		id := s.DatasetID()
		if id == "" {
			id = uuid.NewString()
		}
		if _, ok := c.datasets[id]; ok || planned[id] {
			return tabular.InvalidArgumentf("dataset %q already exists", id)
		}
		planned[id] = true
		ids[s] = id
		return nil
	}
	if err := resolve(spec); err != nil {
		return nil, err
	}

	var built []*Dataset
	var build func(s Spec) (*Dataset, error)
	build = func(s Spec) (*Dataset, error) {
		switch s := s.(type) {
		case RefSpec:
			return c.datasets[s.ID], nil
		case MutableSpec:
			store, err := c.newStore(ids[s], s.Backend)
			if err != nil {
				return nil, err
			}
			d := &Dataset{ID: ids[s], Type: TypeMutable, Created: time.Now(), view: view.NewDirect(store), store: store}
			built = append(built, d)
			return d, nil
		case TransposedSpec:
			inner, err := build(s.Inner)
			if err != nil {
				return nil, err
			}
			d := &Dataset{
				ID:      ids[s],
				Type:    TypeTransposed,
				Created: time.Now(),
				view:    view.NewTransposed(inner.view, c.opts.View),
				inner:   inner.ID,
			}
			built = append(built, d)
			return d, nil
		}
		return nil, fmt.Errorf("unhandled dataset spec %T", s)
	}

	top, err := build(spec)
	if err != nil {
		for _, d := range built {
			if d.store != nil {
				d.store.Release()
			}
		}
		return nil, err
	}

	for _, d := range built {
		c.datasets[d.ID] = d
		if c.collector.Enabled() {
			c.collector.Add(annotations.Event{
				Name:  annotations.DatasetCreated,
				Start: d.Created,
				End:   time.Now(),
				Data:  map[string]interface{}{"id": d.ID, "kind": view.Describe(d.view)},
			})
		}
	}
	return top, nil
}

func (c *Catalog) newStore(id, backend string) (*storage.FactStore, error) {
	if backend == "" {
		backend = c.opts.Backend
	}
	opts := []storage.Option{storage.WithAnnotations(c.opts.Handler)}

	switch backend {
	case BackendMemory:
		return storage.NewMemoryStore(opts...), nil
	case BackendBadger:
		bopts := c.opts.Badger
		if bopts.Dir != "" {
			bopts.Dir = filepath.Join(bopts.Dir, id)
		}
		b, err := storage.NewBadgerBackend(bopts)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", id, err)
		}
		return storage.NewFactStore(b, opts...), nil
	}
	return nil, tabular.InvalidArgumentf("dataset %q: unknown backend %q", id, backend)
}

// Get returns the dataset registered under id
func (c *Catalog) Get(id string) (*Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.datasets[id]
	if !ok {
		return nil, tabular.NotFoundf("dataset %q does not exist", id)
	}
	return d, nil
}

// Delete unregisters id and releases what it owns. Datasets viewing it are
// left dangling.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.datasets[id]; !ok {
		return tabular.NotFoundf("dataset %q does not exist", id)
	}
	c.deleteLocked(id)
	return nil
}

func (c *Catalog) deleteLocked(id string) {
	d := c.datasets[id]
	delete(c.datasets, id)
	c.release(d)
}

func (c *Catalog) release(d *Dataset) {
	if d.store != nil {
		d.store.Release()
	}
	if r, ok := d.view.(view.Releaser); ok {
		r.Release()
	}
	if c.collector.Enabled() {
		now := time.Now()
		c.collector.Add(annotations.Event{
			Name:  annotations.DatasetDeleted,
			Start: now,
			End:   now,
			Data:  map[string]interface{}{"id": d.ID},
		})
	}
}

// List returns the registered ids in natural order
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.datasets))
	for id := range c.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Query runs q against the dataset registered under id
func (c *Catalog) Query(ctx context.Context, id string, q executor.Query) ([]executor.Row, error) {
	d, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	return c.engine.Query(ctx, d.view, q)
}

// Close releases every dataset
func (c *Catalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.datasets {
		c.deleteLocked(id)
	}
}
