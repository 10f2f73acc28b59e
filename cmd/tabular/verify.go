package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-tabular/tabular/catalog"
	"github.com/wbrown/janus-tabular/tabular/executor"
)

var verifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Check that the double transpose of a file answers like the file",
	Long: `Verify loads FILE into a dataset D, declares T(D) and T(T(D)), then runs a
set of queries against D and T(T(D)) and compares the answers row by row.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerifyCmd,
}

var verifyMaxLines int

func init() {
	verifyCmd.Flags().IntVar(&verifyMaxLines, "max-lines", 0, "stop after this many lines (0 = config max-lines)")
}

// verifyQueries are compared between D and T(T(D))
var verifyQueries = []executor.Query{
	{},
	{OrderBy: "rowHash()"},
	{OrderBy: "rowName() DESC", Limit: 10},
	{Where: "columnCount() > 1", OrderBy: "rowHash() DESC"},
	{OrderBy: "rowHash()", Offset: 1, Limit: 5},
}

// verifyResult is the outcome of one query
type verifyResult struct {
	Query    executor.Query
	Want     int
	Got      int
	Mismatch int // index of the first differing row, -1 when equal
}

func (r verifyResult) ok() bool { return r.Mismatch < 0 }

func runVerifyCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	maxLines := verifyMaxLines
	if maxLines == 0 {
		maxLines = config.MaxLines
	}

	c := catalog.New(config.CatalogOptions(annotationHandler()))
	defer c.Close()

	if _, _, err := loadFile(ctx, c, args[0], time.Now(), maxLines); err != nil {
		return err
	}
	results, err := verify(ctx, c, "raw", verifyQueries)
	if err != nil {
		return err
	}

	failed := report(cmd.OutOrStdout(), c, results)
	if failed > 0 {
		return errorf("%d of %d queries differ", failed, len(results))
	}
	return nil
}

// verify declares T(T(id)) and compares each query's answer against id
func verify(ctx context.Context, c *catalog.Catalog, id string, queries []executor.Query) ([]verifyResult, error) {
	tt, err := c.Create(ctx, catalog.Config{
		Type: catalog.TypeTransposed,
		ID:   id + ".tt",
		Params: &catalog.Params{Dataset: &catalog.Config{
			Type:   catalog.TypeTransposed,
			ID:     id + ".t",
			Params: &catalog.Params{Dataset: &catalog.Config{ID: id}},
		}},
	})
	if err != nil {
		return nil, err
	}

	results := make([]verifyResult, 0, len(queries))
	for _, q := range queries {
		want, err := c.Query(ctx, id, q)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", q, id, err)
		}
		got, err := c.Query(ctx, tt.ID, q)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", q, tt.ID, err)
		}

		r := verifyResult{Query: q, Want: len(want), Got: len(got), Mismatch: -1}
		for i := 0; i < len(want) || i < len(got); i++ {
			if i >= len(want) || i >= len(got) || !want[i].Equal(got[i]) {
				r.Mismatch = i
				break
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// report prints one line per query and returns the number of failures
func report(w io.Writer, c *catalog.Catalog, results []verifyResult) int {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, st := range c.Stats() {
		fmt.Fprintf(w, "%s %-12s %-36s rows=%d facts=%d\n", dim("dataset"), st.ID, st.View, st.Rows, st.Facts)
	}

	failed := 0
	for _, r := range results {
		if r.ok() {
			fmt.Fprintf(w, "%s %s %s\n", pass("PASS"), r.Query, dim(fmt.Sprintf("(%d rows)", r.Want)))
			continue
		}
		failed++
		fmt.Fprintf(w, "%s %s: D has %d rows, T(T(D)) has %d, first difference at row %d\n",
			fail("FAIL"), r.Query, r.Want, r.Got, r.Mismatch)
	}
	return failed
}
