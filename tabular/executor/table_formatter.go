package executor

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-tabular/tabular"
)

// TableFormatter renders query results as markdown tables
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a new table formatter with default settings
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatRows pivots rows into one table column per attribute. A column with
// several values in one row lists them all, separated by "; ".
func (tf *TableFormatter) FormatRows(rows []Row) string {
	if len(rows) == 0 {
		return "_No rows_"
	}

	seen := make(map[tabular.Attribute]bool)
	var attrs []tabular.Attribute
	for _, r := range rows {
		for _, c := range r.Columns {
			if !seen[c.A] {
				seen[c.A] = true
				attrs = append(attrs, c.A)
			}
		}
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i] < attrs[j] })

	headers := make([]string, 0, len(attrs)+1)
	headers = append(headers, "rowName")
	for _, a := range attrs {
		headers = append(headers, tf.truncate(string(a)))
	}

	body := make([][]string, len(rows))
	for i, r := range rows {
		values := make(map[tabular.Attribute][]string)
		for _, c := range r.Columns {
			values[c.A] = append(values[c.A], c.V.String())
		}
		line := make([]string, 0, len(headers))
		line = append(line, tf.truncate(string(r.Name)))
		for _, a := range attrs {
			line = append(line, tf.truncate(strings.Join(values[a], "; ")))
		}
		body[i] = line
	}

	return tf.formatTable(headers, body, len(rows))
}

// FormatFacts renders one line per (row, column, value, timestamp)
func (tf *TableFormatter) FormatFacts(rows []Row) string {
	if len(rows) == 0 {
		return "_No rows_"
	}

	var body [][]string
	for _, r := range rows {
		for _, c := range r.Columns {
			body = append(body, []string{
				tf.truncate(string(r.Name)),
				tf.truncate(string(c.A)),
				tf.truncate(c.V.String()),
				c.T.Format("2006-01-02 15:04:05"),
			})
		}
	}
	return tf.formatTable([]string{"rowName", "column", "value", "timestamp"}, body, len(rows))
}

func (tf *TableFormatter) formatTable(headers []string, body [][]string, rowCount int) string {
	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, line := range body {
		table.Append(line)
	}
	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", rowCount))
	return tableString.String()
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	cut := tf.MaxWidth - len(tf.TruncateString)
	if cut < 0 {
		cut = 0
	}
	// Never split a multi-byte rune
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + tf.TruncateString
}

// RowsString renders rows with the default formatter
func RowsString(rows []Row) string {
	return NewTableFormatter().FormatRows(rows)
}
