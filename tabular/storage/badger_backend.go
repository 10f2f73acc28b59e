package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-tabular/tabular"
)

// BadgerBackend stores facts in a BadgerDB key space. It runs in-memory unless
// a directory is given; durability across restarts is not part of its contract.
type BadgerBackend struct {
	db *badger.DB

	mu       sync.RWMutex
	aborted  map[uint64]bool // epochs whose Append failed part-way
	entities int
	facts    int
	bytes    int64
}

// BadgerOptions configures the badger backend
type BadgerOptions struct {
	// Dir is the data directory; empty runs badger in in-memory mode
	Dir string
	// MemTableSize overrides badger's default memtable size when non-zero
	MemTableSize int64
}

// NewBadgerBackend opens a badger key space for facts
func NewBadgerBackend(opts BadgerOptions) (*BadgerBackend, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil // Badger's own logging is too chatty for an embedded store
	bopts.DetectConflicts = false
	if opts.MemTableSize > 0 {
		bopts.MemTableSize = opts.MemTableSize
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerBackend{
		db:      db,
		aborted: make(map[uint64]bool),
	}, nil
}

// Append writes the batches through a WriteBatch. A failure marks the epoch as
// aborted so the facts that did land stay invisible.
func (b *BadgerBackend) Append(epoch uint64, batches []Batch) error {
	newEntities, err := b.unseenEntities(batches)
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	fail := func(err error) error {
		wb.Cancel()
		return b.abort(epoch, err)
	}

	var seq uint64
	var written int64
	facts := 0
	for _, e := range newEntities {
		if err := wb.Set(encodeEntityKey(e), encodeEpoch(epoch)); err != nil {
			return fail(fmt.Errorf("failed to write entity %q: %w", e, err))
		}
	}
	for _, batch := range batches {
		for _, c := range batch.Cells {
			val, err := encodeCell(c)
			if err != nil {
				return fail(err)
			}
			key := encodeRowKey(batch.Entity, epoch, seq)
			seq++
			if err := wb.Set(key, val); err != nil {
				return fail(fmt.Errorf("failed to write fact for %q: %w", batch.Entity, err))
			}
			written += int64(len(key) + len(val))
			facts++
		}
	}
	// Flush finishes the batch itself; Cancel must not follow it
	if err := wb.Flush(); err != nil {
		return b.abort(epoch, fmt.Errorf("failed to flush commit: %w", err))
	}

	b.mu.Lock()
	b.entities += len(newEntities)
	b.facts += facts
	b.bytes += written
	b.mu.Unlock()
	return nil
}

// unseenEntities returns entities in batches that have no visible entity key yet,
// in first-appearance order and without duplicates
func (b *BadgerBackend) unseenEntities(batches []Batch) ([]tabular.Entity, error) {
	seen := make(map[tabular.Entity]bool, len(batches))
	var out []tabular.Entity

	err := b.db.View(func(txn *badger.Txn) error {
		for _, batch := range batches {
			if len(batch.Cells) == 0 || seen[batch.Entity] {
				continue
			}
			seen[batch.Entity] = true

			item, err := txn.Get(encodeEntityKey(batch.Entity))
			if err == badger.ErrKeyNotFound {
				out = append(out, batch.Entity)
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			first, err := decodeEpoch(val)
			if err != nil {
				return err
			}
			// An entity first written by an aborted commit must be re-stamped
			if b.isAborted(first) {
				out = append(out, batch.Entity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read entity index: %w", err)
	}
	return out, nil
}

func (b *BadgerBackend) abort(epoch uint64, err error) error {
	b.mu.Lock()
	b.aborted[epoch] = true
	b.mu.Unlock()
	return err
}

func (b *BadgerBackend) isAborted(epoch uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.aborted[epoch]
}

func (b *BadgerBackend) visible(factEpoch, snapshot uint64) bool {
	return factEpoch <= snapshot && !b.isAborted(factEpoch)
}

// Entities iterates the entity index lazily inside a read transaction
func (b *BadgerBackend) Entities(ctx context.Context, epoch uint64) (tabular.EntityIterator, error) {
	if b.db.IsClosed() {
		return nil, tabular.DanglingViewf("badger backend is closed")
	}

	txn := b.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{entityKeyPrefix}
	opts.PrefetchSize = 1000

	return &badgerEntityIterator{
		ctx:     ctx,
		backend: b,
		epoch:   epoch,
		txn:     txn,
		it:      txn.NewIterator(opts),
		prefix:  opts.Prefix,
	}, nil
}

// Facts scans the entity's row prefix, skipping facts from later or aborted epochs
func (b *BadgerBackend) Facts(ctx context.Context, entity tabular.Entity, epoch uint64) ([]tabular.Cell, error) {
	if b.db.IsClosed() {
		return nil, tabular.DanglingViewf("badger backend is closed")
	}

	prefix := rowPrefix(entity)
	cells := []tabular.Cell{}

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			factEpoch, err := rowKeyEpoch(prefix, item.Key())
			if err != nil {
				return err
			}
			if factEpoch > epoch {
				break
			}
			if b.isAborted(factEpoch) {
				continue
			}
			err = item.Value(func(val []byte) error {
				c, err := decodeCell(val)
				if err != nil {
					return err
				}
				cells = append(cells, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan facts of %q: %w", entity, err)
	}
	return cells, nil
}

// Stats reports counters maintained by Append
func (b *BadgerBackend) Stats() BackendStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BackendStats{
		Kind:        "badger",
		Entities:    b.entities,
		Facts:       b.facts,
		ApproxBytes: b.bytes,
	}
}

// Close closes the badger database
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// badgerEntityIterator walks the entity index without materializing it
type badgerEntityIterator struct {
	ctx     context.Context
	backend *BadgerBackend
	epoch   uint64
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	current tabular.Entity
	err     error
	closed  bool
}

func (bi *badgerEntityIterator) Next() bool {
	if bi.err != nil || bi.closed {
		return false
	}

	if !bi.started {
		bi.it.Seek(bi.prefix)
		bi.started = true
	} else {
		bi.it.Next()
	}

	for ; bi.it.ValidForPrefix(bi.prefix); bi.it.Next() {
		if err := bi.ctx.Err(); err != nil {
			bi.err = err
			return false
		}

		item := bi.it.Item()
		var first uint64
		err := item.Value(func(val []byte) error {
			var err error
			first, err = decodeEpoch(val)
			return err
		})
		if err != nil {
			bi.err = err
			return false
		}
		if !bi.backend.visible(first, bi.epoch) {
			continue
		}

		e, err := decodeEntityKey(item.KeyCopy(nil))
		if err != nil {
			bi.err = err
			return false
		}
		bi.current = e
		return true
	}
	return false
}

func (bi *badgerEntityIterator) Entity() tabular.Entity { return bi.current }
func (bi *badgerEntityIterator) Err() error            { return bi.err }

func (bi *badgerEntityIterator) Close() error {
	if bi.closed {
		return nil
	}
	bi.closed = true
	bi.it.Close()
	bi.txn.Discard()
	return nil
}
