package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wbrown/janus-tabular/tabular"
)

// Row is what a where clause is evaluated against
type Row struct {
	Name  tabular.Entity
	Cells []tabular.Cell
}

// RowHash is the stable hash of a row identifier used by rowHash()
func RowHash(e tabular.Entity) uint64 {
	return xxhash.Sum64String(string(e))
}

// Node is any parsed where-clause element
type Node interface {
	String() string
}

// Predicate is a node evaluating to true or false
type Predicate interface {
	Node
	Test(row *Row) bool
}

// Operand is a node producing zero or more values. No values means NULL.
type Operand interface {
	Node
	Values(row *Row) []tabular.Value
}

// Literal is a constant value
type Literal struct {
	Value tabular.Value
	// Exact holds an unsigned integer literal at full precision, for
	// comparisons with rowHash()
	Exact *uint64
}

func (l *Literal) Values(*Row) []tabular.Value { return []tabular.Value{l.Value} }

func (l *Literal) String() string {
	switch l.Value.Kind() {
	case tabular.KindString:
		s, _ := l.Value.AsString()
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case tabular.KindTimestamp:
		ts, _ := l.Value.AsTimestamp()
		return "TIMESTAMP '" + ts.Format(time.RFC3339Nano) + "'"
	case tabular.KindNumber:
		n, _ := l.Value.AsNumber()
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return "NULL"
}

// ColumnRef yields every value the row holds for one attribute
type ColumnRef struct {
	Name tabular.Attribute
}

func (c *ColumnRef) Values(row *Row) []tabular.Value {
	var out []tabular.Value
	for _, cell := range row.Cells {
		if cell.A == c.Name {
			out = append(out, cell.V)
		}
	}
	return out
}

func (c *ColumnRef) String() string {
	return `"` + strings.ReplaceAll(string(c.Name), `"`, `""`) + `"`
}

// Function names understood in expressions
const (
	FuncRowName     = "rowName"
	FuncRowHash     = "rowHash"
	FuncColumnCount = "columnCount"
)

// FuncCall is one of the built-in row functions
type FuncCall struct {
	Name string
}

func (f *FuncCall) Values(row *Row) []tabular.Value {
	switch f.Name {
	case FuncRowName:
		return []tabular.Value{tabular.String(string(row.Name))}
	case FuncRowHash:
		return []tabular.Value{tabular.Number(float64(RowHash(row.Name)))}
	case FuncColumnCount:
		seen := make(map[tabular.Attribute]struct{}, len(row.Cells))
		for _, c := range row.Cells {
			seen[c.A] = struct{}{}
		}
		return []tabular.Value{tabular.Int(int64(len(seen)))}
	}
	return nil
}

func (f *FuncCall) String() string { return f.Name + "()" }

// Comparison holds when some value on the left and some value on the right
// have the same kind and satisfy Op
type Comparison struct {
	Op    string
	Left  Operand
	Right Operand
}

func (c *Comparison) Test(row *Row) bool {
	if l, r, ok := c.hashOperands(row); ok {
		cmp := 0
		switch {
		case l < r:
			cmp = -1
		case l > r:
			cmp = 1
		}
		return compareHolds(c.Op, cmp)
	}

	left := c.Left.Values(row)
	if len(left) == 0 {
		return false
	}
	right := c.Right.Values(row)
	for _, l := range left {
		for _, r := range right {
			if l.Kind() != r.Kind() {
				continue
			}
			if compareHolds(c.Op, tabular.CompareValues(l, r)) {
				return true
			}
		}
	}
	return false
}

// hashOperands reads both sides as uint64 when one is rowHash() and the other
// is rowHash() or an integer literal. Hashes above 2^53 do not survive float64.
func (c *Comparison) hashOperands(row *Row) (uint64, uint64, bool) {
	l, lHash, lok := exactOperand(c.Left, row)
	r, rHash, rok := exactOperand(c.Right, row)
	return l, r, lok && rok && (lHash || rHash)
}

func exactOperand(o Operand, row *Row) (v uint64, hash, ok bool) {
	switch o := o.(type) {
	case *FuncCall:
		if o.Name == FuncRowHash {
			return RowHash(row.Name), true, true
		}
	case *Literal:
		if o.Exact != nil {
			return *o.Exact, false, true
		}
	}
	return 0, false, false
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func compareHolds(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "!=", "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// IsNull tests whether an operand produces no value
type IsNull struct {
	Operand Operand
	Not     bool
}

func (n *IsNull) Test(row *Row) bool {
	null := len(n.Operand.Values(row)) == 0
	return null != n.Not
}

func (n *IsNull) String() string {
	if n.Not {
		return n.Operand.String() + " IS NOT NULL"
	}
	return n.Operand.String() + " IS NULL"
}

// Truthy turns a bare operand into a predicate: any non-zero number, non-empty
// string or timestamp makes it true
type Truthy struct {
	Operand Operand
}

func (t *Truthy) Test(row *Row) bool {
	for _, v := range t.Operand.Values(row) {
		switch v.Kind() {
		case tabular.KindNumber:
			if n, _ := v.AsNumber(); n != 0 {
				return true
			}
		case tabular.KindString:
			if s, _ := v.AsString(); s != "" {
				return true
			}
		case tabular.KindTimestamp:
			return true
		}
	}
	return false
}

func (t *Truthy) String() string { return t.Operand.String() }

// And holds when both sides hold
type And struct {
	Left, Right Predicate
}

func (a *And) Test(row *Row) bool { return a.Left.Test(row) && a.Right.Test(row) }
func (a *And) String() string     { return fmt.Sprintf("(%s AND %s)", a.Left, a.Right) }

// Or holds when either side holds
type Or struct {
	Left, Right Predicate
}

func (o *Or) Test(row *Row) bool { return o.Left.Test(row) || o.Right.Test(row) }
func (o *Or) String() string     { return fmt.Sprintf("(%s OR %s)", o.Left, o.Right) }

// Not negates a predicate
type Not struct {
	Inner Predicate
}

func (n *Not) Test(row *Row) bool { return !n.Inner.Test(row) }
func (n *Not) String() string     { return "NOT " + n.Inner.String() }

// Bool is a constant predicate; an empty where clause parses to Bool{true}
type Bool struct {
	Value bool
}

func (b *Bool) Test(*Row) bool { return b.Value }

func (b *Bool) String() string {
	if b.Value {
		return "TRUE"
	}
	return "FALSE"
}
