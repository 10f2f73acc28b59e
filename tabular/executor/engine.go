// Package executor runs filter, order and limit queries against any dataset
// view. Results depend only on the facts a view exposes, never on how the
// view is composed.
package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
	"github.com/wbrown/janus-tabular/tabular/expr"
	"github.com/wbrown/janus-tabular/tabular/view"
)

// Options configures an Engine
type Options struct {
	// Handler receives query/* annotations
	Handler annotations.Handler
}

// Engine executes queries. It holds no per-query state and is safe for
// concurrent use.
type Engine struct {
	collector *annotations.Collector
}

// NewEngine creates a query engine
func NewEngine(opts Options) *Engine {
	return &Engine{collector: annotations.NewCollector(opts.Handler)}
}

// Query compiles and runs q against v
func (e *Engine) Query(ctx context.Context, v view.View, q Query) ([]Row, error) {
	start := time.Now()
	if e.collector.Enabled() {
		e.collector.Add(annotations.Event{
			Name:  annotations.QueryInvoked,
			Start: start,
			End:   start,
			Data:  map[string]interface{}{"query": q.String(), "view": view.Describe(v)},
		})
	}

	plan, err := Compile(q)
	if err != nil {
		if e.collector.Enabled() {
			e.collector.AddTiming(annotations.ErrorQueryParsing, start, map[string]interface{}{"error": err.Error()})
		}
		e.complete(start, nil, err)
		return nil, err
	}

	rows, err := e.Execute(ctx, v, plan)
	e.complete(start, rows, err)
	return rows, err
}

func (e *Engine) complete(start time.Time, rows []Row, err error) {
	if !e.collector.Enabled() {
		return
	}
	data := map[string]interface{}{"success": err == nil, "rows.count": len(rows)}
	if err != nil {
		data["error"] = err.Error()
	}
	e.collector.AddTiming(annotations.QueryComplete, start, data)
}

// Execute runs a compiled plan:
//  1. pin the view and list its row identifiers
//  2. sort them by the plan's ordering
//  3. keep rows passing the where clause, skipping Offset of them
//  4. stop after Limit rows
//  5. return each survivor with its cells in canonical order
func (e *Engine) Execute(ctx context.Context, v view.View, plan *Plan) ([]Row, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	pinned, err := v.Pin(ctx)
	if err != nil {
		return nil, err
	}
	it, err := pinned.Entities(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := tabular.CollectEntities(it)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	sortStart := time.Now()
	sort.SliceStable(entities, func(i, j int) bool {
		return plan.Ordering.Compare(entities[i], entities[j]) < 0
	})
	if e.collector.Enabled() {
		e.collector.AddTiming(annotations.QuerySorted, sortStart, map[string]interface{}{
			"entity.count": len(entities),
			"order":        plan.Ordering.String(),
		})
	}

	matStart := time.Now()
	limit := plan.Query.Limit
	skip := plan.Query.Offset
	filtering := plan.filters()

	rows := []Row{}
	for _, ent := range entities {
		if limit > 0 && len(rows) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Unfiltered rows inside the offset never need their cells
		if !filtering && skip > 0 {
			skip--
			continue
		}

		cells, err := pinned.Columns(ctx, ent)
		if err != nil {
			return nil, fmt.Errorf("failed to read row %q: %w", ent, err)
		}
		if filtering && !plan.Where.Test(&expr.Row{Name: ent, Cells: cells}) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}

		tabular.SortCells(cells)
		rows = append(rows, Row{Name: ent, Columns: cells})
	}

	if e.collector.Enabled() {
		e.collector.AddTiming(annotations.QueryRowsFound, matStart, map[string]interface{}{
			"rows.count": len(rows),
		})
	}
	return rows, nil
}
