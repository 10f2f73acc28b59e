package storage

import (
	"github.com/wbrown/janus-tabular/tabular"
)

// Batch is the unit of write: one entity and the ordered cells recorded for it
type Batch struct {
	Entity tabular.Entity
	Cells  []tabular.Cell
}

// NewBatch copies cells into a batch with normalized timestamps
func NewBatch(entity tabular.Entity, cells []tabular.Cell) Batch {
	b := Batch{Entity: entity, Cells: make([]tabular.Cell, len(cells))}
	for i, c := range cells {
		b.Cells[i] = tabular.NewCell(c.A, c.V, c.T)
	}
	return b
}

// Validate checks the batch before it may touch a store
func (b Batch) Validate() error {
	if err := validateIdentifier("entity", string(b.Entity)); err != nil {
		return err
	}
	for i, c := range b.Cells {
		if err := validateIdentifier("attribute", string(c.A)); err != nil {
			return tabular.InvalidArgumentf("entity %q cell %d: %v", b.Entity, i, err)
		}
		if c.V.IsEmpty() {
			return tabular.InvalidArgumentf("entity %q cell %d (%s): value is empty", b.Entity, i, c.A)
		}
	}
	return nil
}

// Facts expands the batch into standalone facts
func (b Batch) Facts() []tabular.Fact {
	facts := make([]tabular.Fact, len(b.Cells))
	for i, c := range b.Cells {
		facts[i] = c.Fact(b.Entity)
	}
	return facts
}

func validateIdentifier(what, name string) error {
	if name == "" {
		return tabular.InvalidArgumentf("%s identifier is empty", what)
	}
	if len(name) > tabular.MaxIdentifierLength {
		return tabular.InvalidArgumentf("%s identifier is %d bytes, limit is %d", what, len(name), tabular.MaxIdentifierLength)
	}
	return nil
}
