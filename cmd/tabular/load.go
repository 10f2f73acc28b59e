package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wbrown/janus-tabular/tabular/catalog"
	"github.com/wbrown/janus-tabular/tabular/executor"
	"github.com/wbrown/janus-tabular/tabular/ingest"
	"github.com/wbrown/janus-tabular/tabular/logger"
)

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load a comma separated file and query it",
	Long: `Load reads FILE (optionally gzip compressed), one row per line: the first
field names the row and every other field names a column holding 1.
The loaded dataset, or its transpose, is then queried and printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

var loadOpts struct {
	query     executor.Query
	transpose bool
	format    string
	maxLines  int
	timestamp string
}

func init() {
	f := loadCmd.Flags()
	f.StringVar(&loadOpts.query.Where, "where", "", "row filter, e.g. \"columnCount() > 2\"")
	f.StringVar(&loadOpts.query.OrderBy, "order-by", "", "rowName() or rowHash(), ASC or DESC")
	f.IntVar(&loadOpts.query.Limit, "limit", 20, "maximum rows printed (0 = all)")
	f.IntVar(&loadOpts.query.Offset, "offset", 0, "rows skipped after filtering")
	f.BoolVarP(&loadOpts.transpose, "transpose", "t", false, "query the transposed dataset")
	f.StringVar(&loadOpts.format, "format", "table", "output format: table, facts or json")
	f.IntVar(&loadOpts.maxLines, "max-lines", 0, "stop after this many lines (0 = config max-lines)")
	f.StringVar(&loadOpts.timestamp, "timestamp", "", "RFC 3339 timestamp of every fact (default now)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ts := time.Now()
	if loadOpts.timestamp != "" {
		var err error
		if ts, err = time.Parse(time.RFC3339Nano, loadOpts.timestamp); err != nil {
			return errorf("bad --timestamp %q: %v", loadOpts.timestamp, err)
		}
	}
	maxLines := loadOpts.maxLines
	if maxLines == 0 {
		maxLines = config.MaxLines
	}

	c := catalog.New(config.CatalogOptions(annotationHandler()))
	defer c.Close()

	d, res, err := loadFile(ctx, c, args[0], ts, maxLines)
	if err != nil {
		return err
	}
	logger.Logger.Infow("Loaded", "file", args[0], "lines", res.Lines, "rows", res.Rows,
		"facts", res.Facts, "truncated", res.Truncated)

	id := d.ID
	if loadOpts.transpose {
		t, err := c.Create(ctx, catalog.Config{Type: catalog.TypeTransposed, ID: "transposed",
			Params: &catalog.Params{Dataset: &catalog.Config{ID: d.ID}}})
		if err != nil {
			return err
		}
		id = t.ID
	}

	rows, err := c.Query(ctx, id, loadOpts.query)
	if err != nil {
		return err
	}
	return printRows(cmd.OutOrStdout(), rows, loadOpts.format)
}

// loadFile creates the mutable dataset "raw" in c and commits path into it
func loadFile(ctx context.Context, c *catalog.Catalog, path string, ts time.Time, maxLines int) (*catalog.Dataset, ingest.Result, error) {
	src, err := ingest.Open(path)
	if err != nil {
		return nil, ingest.Result{}, err
	}
	defer src.Close()

	d, err := c.Create(ctx, catalog.Config{Type: catalog.TypeMutable, ID: "raw"})
	if err != nil {
		return nil, ingest.Result{}, err
	}
	l := &ingest.Loader{
		Sink:      d,
		Timestamp: ts,
		MaxLines:  maxLines,
		Commit:    true,
		Handler:   annotationHandler(),
	}
	res, err := l.Load(ctx, src)
	if err != nil {
		return nil, res, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return d, res, nil
}

func printRows(w io.Writer, rows []executor.Row, format string) error {
	tf := executor.NewTableFormatter()
	switch format {
	case "table":
		fmt.Fprintln(w, tf.FormatRows(rows))
	case "facts":
		fmt.Fprintln(w, tf.FormatFacts(rows))
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		return errorf("unknown format %q", format)
	}
	return nil
}
