package tabular

import (
	"sort"
	"strings"
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Values of different kinds order by kind (string < number < timestamp) so the
// result is a total order usable for canonical sorting. Predicates that need
// "incomparable" semantics check Kind first.
func CompareValues(left, right Value) int {
	if left.kind != right.kind {
		if left.kind < right.kind {
			return -1
		}
		return 1
	}

	switch left.kind {
	case KindString:
		return strings.Compare(left.str, right.str)
	case KindNumber:
		return compareFloat(left.num, right.num)
	case KindTimestamp:
		if left.ts.Before(right.ts) {
			return -1
		} else if left.ts.After(right.ts) {
			return 1
		}
	}
	return 0
}

// compareFloat orders NaN before every other number
func compareFloat(l, r float64) int {
	lNaN, rNaN := l != l, r != r
	switch {
	case lNaN && rNaN:
		return 0
	case lNaN:
		return -1
	case rNaN:
		return 1
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

// CompareCells orders cells by attribute, then timestamp, then value
func CompareCells(left, right Cell) int {
	if c := left.A.Compare(right.A); c != 0 {
		return c
	}
	if left.T.Before(right.T) {
		return -1
	} else if left.T.After(right.T) {
		return 1
	}
	return CompareValues(left.V, right.V)
}

// SortCells sorts cells into canonical order in place. The sort is stable so
// fully equal cells keep their relative order.
func SortCells(cells []Cell) {
	sort.SliceStable(cells, func(i, j int) bool {
		return CompareCells(cells[i], cells[j]) < 0
	})
}

// SortEntities sorts entity identifiers into natural order in place
func SortEntities(entities []Entity) {
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
}
