package annotations

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	c := NewCollector(nil)
	require.Nil(t, c)
	assert.False(t, c.Enabled())

	// None of these may panic on a nil collector
	c.Add(Event{Name: QueryInvoked})
	c.AddTiming(QueryComplete, time.Now(), nil)
	c.Reset()
	assert.Empty(t, c.Events())
}

func TestCollectorConcurrentAdd(t *testing.T) {
	var mu sync.Mutex
	seen := 0
	c := NewCollector(func(Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddTiming(StoreRecorded, time.Now(), nil)
		}()
	}
	wg.Wait()

	assert.Len(t, c.Events(), 50)
	assert.Equal(t, 50, seen)
}

func TestOutputFormatterPlain(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)

	f.Handle(Event{
		Name:    StoreCommitted,
		Latency: 1500 * time.Microsecond,
		Data:    map[string]interface{}{"epoch": uint64(1), "facts.count": 3, "rows.count": 2},
	})
	f.Handle(Event{Name: StoreRecorded})
	f.Handle(Event{
		Name: QueryComplete,
		Data: map[string]interface{}{"success": true, "rows.count": 2},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "store/recorded must not print")
	assert.Equal(t, "[1.50ms] === Commit epoch 1 published 3 facts across 2 rows", lines[0])
	assert.Contains(t, lines[1], "Query done with 2 rows")
}

func TestTruncateQuery(t *testing.T) {
	long := strings.Repeat("a ", 100)
	got := truncateQuery(long)
	assert.Len(t, got, 80)
	assert.True(t, strings.HasSuffix(got, "..."))

	wide := truncateQuery(strings.Repeat("日本", 40))
	assert.True(t, utf8.ValidString(wide), "%q", wide)
	assert.LessOrEqual(t, len(wide), 80)
	assert.True(t, strings.HasSuffix(wide, "..."))
}
