package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
)

var errDiskFull = errors.New("disk full")

// failingBackend rejects the next failures appends before they reach the
// wrapped backend
type failingBackend struct {
	Backend
	failures int
	appends  []uint64
}

func (f *failingBackend) Append(epoch uint64, batches []Batch) error {
	f.appends = append(f.appends, epoch)
	if f.failures > 0 {
		f.failures--
		return errDiskFull
	}
	return f.Backend.Append(epoch, batches)
}

// partialBadger lands the whole commit in badger, then fails as a flush error
// would, leaving entity keys and facts of the epoch on disk
type partialBadger struct {
	*BadgerBackend
	failures int
}

func (p *partialBadger) Append(epoch uint64, batches []Batch) error {
	if err := p.BadgerBackend.Append(epoch, batches); err != nil {
		return err
	}
	if p.failures > 0 {
		p.failures--
		return p.abort(epoch, errDiskFull)
	}
	return nil
}

func newTestBadger(t *testing.T) *BadgerBackend {
	b, err := NewBadgerBackend(BadgerOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func cellsOf(t *testing.T, s *FactStore, e tabular.Entity) []tabular.Cell {
	t.Helper()
	cells, err := s.Facts(context.Background(), e)
	require.NoError(t, err)
	return cells
}

func TestFailedCommitBurnsEpochAndKeepsPending(t *testing.T) {
	for _, tt := range []struct {
		name  string
		inner func(t *testing.T) Backend
	}{
		{"memory", func(t *testing.T) Backend { return NewMemoryBackend() }},
		{"badger", func(t *testing.T) Backend { return newTestBadger(t) }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var names []string
			backend := &failingBackend{Backend: tt.inner(t), failures: 1}
			s := NewFactStore(backend, WithAnnotations(func(e annotations.Event) {
				mu.Lock()
				names = append(names, e.Name)
				mu.Unlock()
			}))

			require.NoError(t, s.RecordRow("u1", []tabular.Cell{one("k1")}))
			_, err := s.Commit()
			require.NoError(t, err)
			before := s.Snapshot()

			require.NoError(t, s.RecordRow("u1", []tabular.Cell{one("k2")}))
			require.NoError(t, s.RecordRow("u2", []tabular.Cell{one("k1"), one("k2")}))

			backend.failures = 1
			_, err = s.Commit()
			require.Error(t, err)
			assert.ErrorIs(t, err, errDiskFull)
			assert.Contains(t, err.Error(), "epoch 2")
			assert.Equal(t, uint64(1), s.Epoch(), "published epoch is unchanged")
			assert.Equal(t, 3, s.Pending(), "facts stay buffered for a retry")
			assert.Equal(t, []tabular.Entity{"u1"}, entities(t, s))
			assert.Len(t, cellsOf(t, s, "u1"), 1)

			epoch, err := s.Commit()
			require.NoError(t, err)
			assert.Equal(t, uint64(3), epoch, "the failed epoch is never reused")
			assert.Equal(t, []uint64{1, 2, 3}, backend.appends)
			assert.Zero(t, s.Pending())

			assert.Equal(t, []tabular.Entity{"u1", "u2"}, entities(t, s))
			assert.Len(t, cellsOf(t, s, "u1"), 2)
			assert.Len(t, cellsOf(t, s, "u2"), 2)

			// a snapshot taken before the failure still reads epoch 1
			facts, err := before.Facts(context.Background(), "u1")
			require.NoError(t, err)
			assert.Len(t, facts, 1)
			assert.Equal(t, []tabular.Entity{"u1"}, entities(t, before))

			assert.Contains(t, names, annotations.ErrorBackend)
		})
	}
}

func TestPartiallyWrittenEpochStaysInvisible(t *testing.T) {
	backend := &partialBadger{BadgerBackend: newTestBadger(t), failures: 1}
	s := NewFactStore(backend)

	require.NoError(t, s.RecordRow("u1", []tabular.Cell{one("k1"), one("k2")}))
	_, err := s.Commit()
	require.ErrorIs(t, err, errDiskFull)

	// entity key and facts of epoch 1 are in badger but aborted
	assert.Empty(t, entities(t, s.AsOf(1)))
	facts, err := backend.Facts(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.Empty(t, facts)
	it, err := backend.Entities(context.Background(), 5)
	require.NoError(t, err)
	ids, err := tabular.CollectEntities(it)
	require.NoError(t, err)
	assert.Empty(t, ids)

	epoch, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epoch)

	// u1 was re-stamped by epoch 2 and each fact shows up exactly once
	assert.Equal(t, []tabular.Entity{"u1"}, entities(t, s))
	cells := cellsOf(t, s, "u1")
	require.Len(t, cells, 2)
	assert.Equal(t, tabular.Attribute("k1"), cells[0].A)
	assert.Equal(t, tabular.Attribute("k2"), cells[1].A)
}

func TestAbortedEntityKeyIsRestamped(t *testing.T) {
	ctx := context.Background()
	b := newTestBadger(t)

	require.NoError(t, b.Append(1, []Batch{{Entity: "u1", Cells: []tabular.Cell{one("k1")}}}))
	b.abort(1, nil)

	collect := func(epoch uint64) []tabular.Entity {
		it, err := b.Entities(ctx, epoch)
		require.NoError(t, err)
		out, err := tabular.CollectEntities(it)
		require.NoError(t, err)
		return out
	}
	assert.Empty(t, collect(1))

	require.NoError(t, b.Append(2, []Batch{{Entity: "u1", Cells: []tabular.Cell{one("k2")}}}))
	assert.Empty(t, collect(1))
	assert.Equal(t, []tabular.Entity{"u1"}, collect(2))

	cells, err := b.Facts(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, tabular.Attribute("k2"), cells[0].A)
}

func TestBackendEntityOrderIsUnspecified(t *testing.T) {
	ctx := context.Background()
	batches := []Batch{
		{Entity: "aa", Cells: []tabular.Cell{one("k1")}},
		{Entity: "b", Cells: []tabular.Cell{one("k1")}},
	}
	order := func(b Backend) []tabular.Entity {
		require.NoError(t, b.Append(1, batches))
		it, err := b.Entities(ctx, 1)
		require.NoError(t, err)
		out, err := tabular.CollectEntities(it)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, []tabular.Entity{"aa", "b"}, order(NewMemoryBackend()))
	// badger keys carry a length prefix, so shorter ids come first
	assert.Equal(t, []tabular.Entity{"b", "aa"}, order(newTestBadger(t)))
}
