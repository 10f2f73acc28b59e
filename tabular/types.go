package tabular

import (
	"fmt"
	"time"
)

// Entity identifies a row in the row-major view and a column in the transposed view
type Entity string

// Attribute identifies a column in the row-major view and a row in the transposed view.
// It shares its representation with Entity but converting between the two is always
// explicit: only a view decides which axis is which.
type Attribute string

// MaxIdentifierLength is the longest entity or attribute name accepted for writing
const MaxIdentifierLength = 1<<16 - 1

// String returns the entity name
func (e Entity) String() string {
	return string(e)
}

// Compare orders entities by their natural (byte-wise) order
func (e Entity) Compare(other Entity) int {
	if e < other {
		return -1
	} else if e > other {
		return 1
	}
	return 0
}

// String returns the attribute name
func (a Attribute) String() string {
	return string(a)
}

// Compare orders attributes by their natural (byte-wise) order
func (a Attribute) Compare(other Attribute) int {
	if a < other {
		return -1
	} else if a > other {
		return 1
	}
	return 0
}

// Fact is the fundamental unit of data: one (entity, attribute, value, timestamp) observation
type Fact struct {
	E Entity    // Row key
	A Attribute // Column key
	V Value     // Tagged value
	T time.Time // When the value was observed
}

// Cell is a fact as seen from inside a row: the entity is implied by the row
type Cell struct {
	A Attribute
	V Value
	T time.Time
}

// NewCell creates a cell, normalizing the timestamp to UTC
func NewCell(a Attribute, v Value, t time.Time) Cell {
	return Cell{A: a, V: v, T: NormalizeTime(t)}
}

// Fact attaches the owning entity to the cell
func (c Cell) Fact(e Entity) Fact {
	return Fact{E: e, A: c.A, V: c.V, T: c.T}
}

// Cell drops the entity from the fact
func (f Fact) Cell() Cell {
	return Cell{A: f.A, V: f.V, T: f.T}
}

// Equal reports whether two cells carry the same attribute, value and timestamp
func (c Cell) Equal(other Cell) bool {
	return c.A == other.A && c.V.Equal(other.V) && c.T.Equal(other.T)
}

// String returns a string representation of the Fact
func (f Fact) String() string {
	return fmt.Sprintf("[%s %s %s %s]", f.E, f.A, f.V, f.T.Format(time.RFC3339Nano))
}

// String returns a string representation of the Cell
func (c Cell) String() string {
	return fmt.Sprintf("[%s %s %s]", c.A, c.V, c.T.Format(time.RFC3339Nano))
}

// NormalizeTime returns t in UTC with any monotonic clock reading stripped,
// so timestamps compare equal after a round trip through storage
func NormalizeTime(t time.Time) time.Time {
	return t.UTC()
}
