package storage

import (
	"context"
	"sync"

	"github.com/wbrown/janus-tabular/tabular"
)

// MemoryBackend keeps facts in process memory
type MemoryBackend struct {
	mu     sync.RWMutex
	rows   map[tabular.Entity]*memoryRow
	facts  int
	bytes  int64
	closed bool
}

type memoryRow struct {
	first uint64 // epoch of the first fact
	cells []stampedCell
}

type stampedCell struct {
	epoch uint64
	cell  tabular.Cell
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[tabular.Entity]*memoryRow)}
}

// Append adds the batches under epoch. It cannot fail part-way.
func (m *MemoryBackend) Append(epoch uint64, batches []Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return tabular.DanglingViewf("memory backend is closed")
	}

	for _, b := range batches {
		if len(b.Cells) == 0 {
			continue
		}
		row, ok := m.rows[b.Entity]
		if !ok {
			row = &memoryRow{first: epoch}
			m.rows[b.Entity] = row
			m.bytes += int64(len(b.Entity)) + 48
		}
		for _, c := range b.Cells {
			row.cells = append(row.cells, stampedCell{epoch: epoch, cell: c})
			m.bytes += cellSize(c)
		}
		m.facts += len(b.Cells)
	}
	return nil
}

// Entities returns entities visible at epoch in natural order
func (m *MemoryBackend) Entities(ctx context.Context, epoch uint64) (tabular.EntityIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, tabular.DanglingViewf("memory backend is closed")
	}

	entities := make([]tabular.Entity, 0, len(m.rows))
	for e, row := range m.rows {
		if row.first <= epoch {
			entities = append(entities, e)
		}
	}
	tabular.SortEntities(entities)
	return tabular.NewSliceIterator(ctx, entities), nil
}

// Facts copies the visible cells of entity
func (m *MemoryBackend) Facts(ctx context.Context, entity tabular.Entity, epoch uint64) ([]tabular.Cell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, tabular.DanglingViewf("memory backend is closed")
	}

	row, ok := m.rows[entity]
	if !ok || row.first > epoch {
		return []tabular.Cell{}, nil
	}

	// Cells are appended in epoch order, so the first later epoch ends the scan
	cells := make([]tabular.Cell, 0, len(row.cells))
	for _, sc := range row.cells {
		if sc.epoch > epoch {
			break
		}
		cells = append(cells, sc.cell)
	}
	return cells, nil
}

// Stats reports entity and fact counts
func (m *MemoryBackend) Stats() BackendStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return BackendStats{
		Kind:        "memory",
		Entities:    len(m.rows),
		Facts:       m.facts,
		ApproxBytes: m.bytes,
	}
}

// Close drops all data
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.rows = nil
	return nil
}
