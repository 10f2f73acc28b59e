package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
	"github.com/wbrown/janus-tabular/tabular/storage"
)

// ParseRecord splits a comma separated line: the first field names the row,
// every other non-empty field is a column holding 1 at ts.
func ParseRecord(line string, ts time.Time) (storage.Batch, error) {
	fields := strings.Split(line, ",")
	if fields[0] == "" {
		return storage.Batch{}, tabular.InvalidArgumentf("record %q has an empty row name", line)
	}

	cells := make([]tabular.Cell, 0, len(fields)-1)
	for _, f := range fields[1:] {
		if f == "" {
			continue
		}
		cells = append(cells, tabular.NewCell(tabular.Attribute(f), tabular.Int(1), ts))
	}
	return storage.Batch{Entity: tabular.Entity(fields[0]), Cells: cells}, nil
}

// Sink receives parsed rows. FactStore and catalog datasets both qualify.
type Sink interface {
	RecordBatches(batches []storage.Batch) error
	Commit() (uint64, error)
}

// Loader streams a LineSource into a Sink
type Loader struct {
	Sink Sink
	// Timestamp stamps every fact
	Timestamp time.Time
	// MaxLines stops the load early (0 = read to EOF)
	MaxLines int
	// BatchSize is the number of rows handed to the sink at once (0 = 1000)
	BatchSize int
	// ProgressEvery emits ingest/progress every so many lines (0 = 100000)
	ProgressEvery int
	// Commit publishes the rows once the source is consumed
	Commit bool
	// Handler receives ingest/* annotations
	Handler annotations.Handler
}

// Result summarizes a load
type Result struct {
	Lines     int    `json:"lines"`
	Rows      int    `json:"rows"`
	Facts     int    `json:"facts"`
	Truncated bool   `json:"truncated"` // stopped at MaxLines before EOF
	Epoch     uint64 `json:"epoch,omitempty"`
}

// Load reads until EOF, MaxLines or ctx cancellation. Blank lines are counted
// but skipped. A malformed line aborts the load; rows already handed to the
// sink stay buffered and uncommitted.
func (l *Loader) Load(ctx context.Context, src LineSource) (Result, error) {
	start := time.Now()
	collector := annotations.NewCollector(l.Handler)
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	every := l.ProgressEvery
	if every <= 0 {
		every = 100000
	}

	var res Result
	pending := make([]storage.Batch, 0, batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := l.Sink.RecordBatches(pending); err != nil {
			return err
		}
		pending = pending[:0]
		return nil
	}

	for !src.EOF() {
		if l.MaxLines > 0 && res.Lines >= l.MaxLines {
			res.Truncated = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line, err := src.ReadLine()
		if err != nil {
			return res, fmt.Errorf("failed to read line %d: %w", res.Lines+1, err)
		}
		res.Lines++

		if res.Lines%every == 0 && collector.Enabled() {
			collector.AddTiming(annotations.IngestProgress, start, map[string]interface{}{"lines": res.Lines})
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		b, err := ParseRecord(line, l.Timestamp)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", res.Lines, err)
		}
		pending = append(pending, b)
		res.Rows++
		res.Facts += len(b.Cells)

		if len(pending) >= batchSize {
			if err := flush(); err != nil {
				return res, fmt.Errorf("line %d: %w", res.Lines, err)
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	if l.Commit {
		epoch, err := l.Sink.Commit()
		if err != nil {
			return res, err
		}
		res.Epoch = epoch
	}

	if collector.Enabled() {
		collector.AddTiming(annotations.IngestComplete, start, map[string]interface{}{
			"lines":       res.Lines,
			"rows.count":  res.Rows,
			"facts.count": res.Facts,
			"truncated":   res.Truncated,
		})
	}
	return res, nil
}
