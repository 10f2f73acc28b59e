package executor

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/expr"
)

// Query selects, orders and truncates the rows of a view
type Query struct {
	Where   string `json:"where,omitempty"`
	OrderBy string `json:"orderBy,omitempty"`
	Limit   int    `json:"limit,omitempty"`  // 0 = no limit
	Offset  int    `json:"offset,omitempty"` // rows skipped after filtering
}

// String renders the query in SQL-ish form for logs and annotations
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT *")
	if q.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String()
}

// Plan is a validated query ready to run against any view
type Plan struct {
	Query    Query
	Where    expr.Predicate
	Ordering expr.Ordering
}

// Compile validates q. Every failure is marked ErrInvalidQuery.
func Compile(q Query) (*Plan, error) {
	if q.Limit < 0 {
		return nil, tabular.InvalidQueryf("limit must not be negative, got %d", q.Limit)
	}
	if q.Offset < 0 {
		return nil, tabular.InvalidQueryf("offset must not be negative, got %d", q.Offset)
	}

	where, err := expr.ParseWhere(q.Where)
	if err != nil {
		return nil, fmt.Errorf("where %q: %w", q.Where, err)
	}
	ordering, err := expr.ParseOrderBy(q.OrderBy)
	if err != nil {
		return nil, fmt.Errorf("orderBy %q: %w", q.OrderBy, err)
	}

	return &Plan{Query: q, Where: where, Ordering: ordering}, nil
}

// filters reports whether the plan needs row contents to decide membership
func (p *Plan) filters() bool {
	b, ok := p.Where.(*expr.Bool)
	return !ok || !b.Value
}
