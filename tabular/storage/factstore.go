package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
)

// FactStore is the mutable sparse store of (entity, attribute, value, timestamp)
// facts. Writes are buffered until Commit, which publishes them atomically by
// advancing the committed epoch; readers pin an epoch and never observe a
// partially applied commit.
//
// Mutation (RecordRow, Commit) follows a single-writer discipline; the store
// still serializes it internally so misuse cannot corrupt the buffer. Reads are
// safe from any number of goroutines.
type FactStore struct {
	backend   Backend
	collector *annotations.Collector

	mu           sync.Mutex // Guards pending and the commit sequence
	pending      []Batch
	pendingFacts int
	allocated    uint64 // Highest epoch handed to the backend, including failed ones

	epoch    atomic.Uint64 // Last published epoch, 0 = never committed
	released atomic.Bool
}

// Option configures a FactStore
type Option func(*FactStore)

// WithAnnotations routes store events to handler
func WithAnnotations(handler annotations.Handler) Option {
	return func(s *FactStore) {
		s.collector = annotations.NewCollector(handler)
	}
}

// NewFactStore creates an empty store over backend
func NewFactStore(backend Backend, opts ...Option) *FactStore {
	s := &FactStore{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemoryStore creates an empty store kept in process memory
func NewMemoryStore(opts ...Option) *FactStore {
	return NewFactStore(NewMemoryBackend(), opts...)
}

// NewBadgerStore creates an empty store backed by an in-memory badger key space
func NewBadgerStore(opts ...Option) (*FactStore, error) {
	backend, err := NewBadgerBackend(BadgerOptions{})
	if err != nil {
		return nil, err
	}
	return NewFactStore(backend, opts...), nil
}

// RecordRow buffers cells for entity. Nothing becomes visible until Commit.
// Malformed input is rejected as a whole with ErrInvalidArgument.
func (s *FactStore) RecordRow(entity tabular.Entity, cells []tabular.Cell) error {
	return s.RecordBatches([]Batch{{Entity: entity, Cells: cells}})
}

// RecordBatch buffers one batch
func (s *FactStore) RecordBatch(b Batch) error {
	return s.RecordBatches([]Batch{b})
}

// RecordBatches validates every batch before buffering copies of any of them
func (s *FactStore) RecordBatches(batches []Batch) error {
	start := time.Now()
	facts := 0
	for _, b := range batches {
		if err := b.Validate(); err != nil {
			return err
		}
		facts += len(b.Cells)
	}

	s.mu.Lock()
	if s.released.Load() {
		s.mu.Unlock()
		return tabular.DanglingViewf("store has been released")
	}
	for _, b := range batches {
		s.pending = append(s.pending, NewBatch(b.Entity, b.Cells))
	}
	s.pendingFacts += facts
	s.mu.Unlock()

	if s.collector.Enabled() {
		s.collector.AddTiming(annotations.StoreRecorded, start, map[string]interface{}{
			"rows.count":  len(batches),
			"facts.count": facts,
		})
	}
	return nil
}

// Commit publishes every buffered fact and returns the new epoch. Each call
// opens a new epoch, even when nothing is buffered, so "committed" is
// observable on a store that recorded nothing.
func (s *FactStore) Commit() (uint64, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released.Load() {
		return 0, tabular.DanglingViewf("store has been released")
	}

	// A failed epoch is never reused: the backend keeps its facts invisible
	s.allocated++
	epoch := s.allocated
	if err := s.backend.Append(epoch, s.pending); err != nil {
		// Pending facts stay buffered so the caller may retry under a new epoch
		if s.collector.Enabled() {
			s.collector.AddTiming(annotations.ErrorBackend, start, map[string]interface{}{
				"epoch": epoch,
				"error": err.Error(),
			})
		}
		return 0, fmt.Errorf("commit of epoch %d failed: %w", epoch, err)
	}
	s.epoch.Store(epoch)

	rows, facts := len(s.pending), s.pendingFacts
	s.pending = nil
	s.pendingFacts = 0

	if s.collector.Enabled() {
		s.collector.AddTiming(annotations.StoreCommitted, start, map[string]interface{}{
			"epoch":       epoch,
			"rows.count":  rows,
			"facts.count": facts,
		})
	}
	return epoch, nil
}

// Epoch returns the last published epoch (0 before the first commit)
func (s *FactStore) Epoch() uint64 {
	return s.epoch.Load()
}

// Committed reports whether at least one commit has been published
func (s *FactStore) Committed() bool {
	return s.epoch.Load() > 0
}

// Pending returns the number of buffered, unpublished facts
func (s *FactStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingFacts
}

// Entities iterates the committed entities at the current epoch
func (s *FactStore) Entities(ctx context.Context) (tabular.EntityIterator, error) {
	return s.Snapshot().Entities(ctx)
}

// Facts returns the committed cells of entity at the current epoch
func (s *FactStore) Facts(ctx context.Context, entity tabular.Entity) ([]tabular.Cell, error) {
	return s.Snapshot().Facts(ctx, entity)
}

// Snapshot pins the current epoch for a consistent multi-call read
func (s *FactStore) Snapshot() Snapshot {
	return Snapshot{store: s, epoch: s.epoch.Load()}
}

// AsOf pins an earlier epoch. Epochs beyond the published one are clamped.
func (s *FactStore) AsOf(epoch uint64) Snapshot {
	if current := s.epoch.Load(); epoch > current {
		epoch = current
	}
	return Snapshot{store: s, epoch: epoch}
}

// Release closes the backend. Views still borrowing the store fail with
// ErrDanglingView from then on.
func (s *FactStore) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released.Swap(true) {
		return nil
	}
	s.pending = nil
	s.pendingFacts = 0
	if s.collector.Enabled() {
		s.collector.Add(annotations.Event{Name: annotations.StoreReleased, Start: time.Now(), End: time.Now()})
	}
	return s.backend.Close()
}

// Released reports whether Release has been called
func (s *FactStore) Released() bool {
	return s.released.Load()
}

// Check fails with ErrDanglingView once the store has been released
func (s *FactStore) Check() error {
	if s.released.Load() {
		return tabular.DanglingViewf("store has been released")
	}
	return nil
}

// Stats summarizes the store
type Stats struct {
	Backend      BackendStats `json:"backend"`
	Epoch        uint64       `json:"epoch"`
	PendingFacts int          `json:"pendingFacts"`
	Released     bool         `json:"released"`
}

// Stats reports the store's status and memory usage
func (s *FactStore) Stats() Stats {
	st := Stats{
		Epoch:        s.epoch.Load(),
		PendingFacts: s.Pending(),
		Released:     s.released.Load(),
	}
	if !st.Released {
		st.Backend = s.backend.Stats()
	}
	return st
}

// Snapshot is a read-only FactStore pinned at one epoch
type Snapshot struct {
	store *FactStore
	epoch uint64
}

// Epoch returns the pinned epoch
func (sn Snapshot) Epoch() uint64 {
	return sn.epoch
}

// Store returns the store the snapshot reads from
func (sn Snapshot) Store() *FactStore {
	return sn.store
}

// Entities iterates the entities visible at the pinned epoch. Before the first
// commit the sequence is empty.
func (sn Snapshot) Entities(ctx context.Context) (tabular.EntityIterator, error) {
	if err := sn.store.Check(); err != nil {
		return nil, err
	}
	if sn.epoch == 0 {
		return tabular.NewSliceIterator(ctx, nil), nil
	}
	return sn.store.backend.Entities(ctx, sn.epoch)
}

// Facts returns the cells of entity visible at the pinned epoch; an unknown
// entity yields an empty slice
func (sn Snapshot) Facts(ctx context.Context, entity tabular.Entity) ([]tabular.Cell, error) {
	if err := sn.store.Check(); err != nil {
		return nil, err
	}
	if sn.epoch == 0 {
		return []tabular.Cell{}, nil
	}
	return sn.store.backend.Facts(ctx, entity, sn.epoch)
}
