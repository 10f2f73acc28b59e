package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle implements the Handler signature - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case StoreCommitted:
		return fmt.Sprintf("%s %s Commit epoch %v published %s across %s",
			latency,
			f.colorize("===", color.FgGreen),
			event.Data["epoch"],
			f.colorizeCount("facts", intData(event, "facts.count")),
			f.colorizeCount("rows", intData(event, "rows.count")))

	case StoreReleased:
		return fmt.Sprintf("%s Store released", latency)

	case ViewIndexBuilt:
		return fmt.Sprintf("%s Transposed index built: %s → %s (depth %v)",
			latency,
			f.colorizeCount("rows", intData(event, "inner.rows")),
			f.colorizeCount("rows", intData(event, "index.rows")),
			event.Data["depth"])

	case QueryInvoked:
		return fmt.Sprintf("%s Query: %s", latency, truncateQuery(stringData(event, "query")))

	case QuerySorted:
		return fmt.Sprintf("%s Sorted %s by %s",
			latency,
			f.colorizeCount("entities", intData(event, "entity.count")),
			stringData(event, "order"))

	case QueryComplete:
		if success, _ := event.Data["success"].(bool); !success {
			return fmt.Sprintf("%s %s Query failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				event.Data["error"])
		}
		return fmt.Sprintf("%s %s Query done with %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("rows", intData(event, "rows.count")))

	case DatasetCreated:
		return fmt.Sprintf("%s Dataset %s created (%s)",
			latency,
			f.colorize(stringData(event, "id"), color.FgCyan),
			stringData(event, "kind"))

	case DatasetDeleted:
		return fmt.Sprintf("%s Dataset %s deleted", latency, stringData(event, "id"))

	case IngestProgress:
		return fmt.Sprintf("%s Loaded %s", latency, f.colorizeCount("lines", intData(event, "lines")))

	case IngestComplete:
		return fmt.Sprintf("%s %s Ingestion finished with %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("lines", intData(event, "lines")))

	case ErrorQueryParsing, ErrorBackend:
		return fmt.Sprintf("%s %s %s: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Name,
			event.Data["error"])
	}

	// Store/recorded and view/index.building are too chatty to print
	return ""
}

func (f *OutputFormatter) formatLatency(d time.Duration) string {
	var s string
	if d < time.Millisecond {
		s = fmt.Sprintf("[%dµs]", d.Microseconds())
	} else {
		s = fmt.Sprintf("[%.2fms]", float64(d.Microseconds())/1000.0)
	}
	if !f.useColor {
		return s
	}
	if d > 100*time.Millisecond {
		return color.RedString(s)
	}
	return color.GreenString(s)
}

func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "rows", "entities":
		return color.CyanString(text)
	case "facts":
		return color.MagentaString(text)
	default:
		return color.YellowString(text)
	}
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func intData(event Event, key string) int {
	n, _ := event.Data[key].(int)
	return n
}

func stringData(event Event, key string) string {
	s, _ := event.Data[key].(string)
	return s
}

// truncateQuery shortens long queries for display.
func truncateQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")

	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}

	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(query[cut]) {
		cut--
	}
	return query[:cut] + "..."
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	formatter := NewOutputFormatter(os.Stderr)
	return formatter.Handle
}
