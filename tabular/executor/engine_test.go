package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/annotations"
	"github.com/wbrown/janus-tabular/tabular/storage"
	"github.com/wbrown/janus-tabular/tabular/view"
)

var t0 = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

func one(a tabular.Attribute) tabular.Cell {
	return tabular.NewCell(a, tabular.Int(1), t0)
}

func scenarioStore(t *testing.T) *storage.FactStore {
	s := storage.NewMemoryStore()
	require.NoError(t, s.RecordRow("u1", []tabular.Cell{one("k1")}))
	require.NoError(t, s.RecordRow("u2", []tabular.Cell{one("k1"), one("k2")}))
	_, err := s.Commit()
	require.NoError(t, err)
	return s
}

func names(rows []Row) []tabular.Entity {
	out := make([]tabular.Entity, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func columnNames(r Row) []tabular.Attribute {
	out := make([]tabular.Attribute, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.A
	}
	return out
}

func TestTransposedScenarioQuery(t *testing.T) {
	engine := NewEngine(Options{})
	ctx := context.Background()
	d := view.NewDirect(scenarioStore(t))
	tv := view.NewTransposed(d, view.Options{})

	rows, err := engine.Query(ctx, tv, Query{OrderBy: "rowHash()"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// xxhash64: k2 = 0x441e..., k1 = 0xdfa4...
	assert.Equal(t, []tabular.Entity{"k2", "k1"}, names(rows))
	assert.Equal(t, []tabular.Attribute{"u2"}, columnNames(rows[0]))
	assert.Equal(t, []tabular.Attribute{"u1", "u2"}, columnNames(rows[1]))

	tt := view.NewTransposed(tv, view.Options{})
	back, err := engine.Query(ctx, tt, Query{OrderBy: "rowHash()"})
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, []tabular.Entity{"u1", "u2"}, names(back))
	assert.Equal(t, []tabular.Attribute{"k1"}, columnNames(back[0]))
	assert.Equal(t, []tabular.Attribute{"k1", "k2"}, columnNames(back[1]))

	direct, err := engine.Query(ctx, d, Query{OrderBy: "rowHash()"})
	require.NoError(t, err)
	assertSameRows(t, direct, back)
}

func assertSameRows(t *testing.T, want, got []Row) {
	t.Helper()
	require.Equal(t, len(want), len(got), "row count")
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "row %d: want %s %v, got %s %v",
			i, want[i].Name, want[i].Columns, got[i].Name, got[i].Columns)
	}
}

func randomStore(t *testing.T, rng *rand.Rand, s *storage.FactStore) *storage.FactStore {
	rows := 1 + rng.Intn(60)
	for r := 0; r < rows; r++ {
		e := tabular.Entity(fmt.Sprintf("user%d", rng.Intn(80)))
		var cells []tabular.Cell
		for c := rng.Intn(5); c > 0; c-- {
			a := tabular.Attribute(fmt.Sprintf("sub%d", rng.Intn(12)))
			ts := t0.Add(time.Duration(rng.Intn(3)) * time.Second)
			var v tabular.Value
			if rng.Intn(2) == 0 {
				v = tabular.Int(int64(rng.Intn(3)))
			} else {
				v = tabular.String(fmt.Sprintf("v%d", rng.Intn(3)))
			}
			cells = append(cells, tabular.NewCell(a, v, ts))
		}
		require.NoError(t, s.RecordRow(e, cells))
	}
	_, err := s.Commit()
	require.NoError(t, err)
	return s
}

func TestRoundTripIdentity(t *testing.T) {
	queries := []Query{
		{},
		{OrderBy: "rowHash()"},
		{OrderBy: "rowHash()", Limit: 5},
		{OrderBy: "rowName() DESC", Limit: 3, Offset: 2},
		{Where: "sub1 = 1 OR sub2 = 'v0'", OrderBy: "rowHash()"},
		{Where: "columnCount() >= 2", OrderBy: "rowHash() DESC", Limit: 10},
		{Where: "sub3 IS NULL AND NOT sub4 = 2"},
	}

	backends := map[string]func() *storage.FactStore{
		"memory": func() *storage.FactStore { return storage.NewMemoryStore() },
		"badger": func() *storage.FactStore {
			s, err := storage.NewBadgerStore()
			require.NoError(t, err)
			t.Cleanup(func() { s.Release() })
			return s
		},
	}

	engine := NewEngine(Options{})
	ctx := context.Background()
	for name, newStore := range backends {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			for i := 0; i < 15; i++ {
				d := view.NewDirect(randomStore(t, rng, newStore()))
				tt := view.NewTransposed(view.NewTransposed(d, view.Options{Workers: 2}), view.Options{BatchSize: 3})

				for _, q := range queries {
					want, err := engine.Query(ctx, d, q)
					require.NoError(t, err)
					got, err := engine.Query(ctx, tt, q)
					require.NoError(t, err)
					assertSameRows(t, want, got)
				}
			}
		})
	}
}

func TestCommitObservability(t *testing.T) {
	engine := NewEngine(Options{})
	ctx := context.Background()
	s := storage.NewMemoryStore()
	d := view.NewDirect(s)

	rows, err := engine.Query(ctx, d, Query{})
	require.NoError(t, err)
	assert.Empty(t, rows, "never-committed store yields zero rows")
	assert.NotNil(t, rows)

	require.NoError(t, s.RecordRow("u1", []tabular.Cell{one("k1")}))
	rows, err = engine.Query(ctx, d, Query{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = s.Commit()
	require.NoError(t, err)
	rows, err = engine.Query(ctx, d, Query{})
	require.NoError(t, err)
	assert.Equal(t, []tabular.Entity{"u1"}, names(rows))
}

func TestOrderingStability(t *testing.T) {
	engine := NewEngine(Options{})
	ctx := context.Background()
	d := view.NewDirect(scenarioStore(t))
	tt := view.NewTransposed(view.NewTransposed(d, view.Options{}), view.Options{})

	for _, order := range []string{"rowHash()", "rowHash() DESC", "rowName()", "rowName() DESC", "rowHash(), rowName()"} {
		a, err := engine.Query(ctx, d, Query{OrderBy: order})
		require.NoError(t, err)
		b, err := engine.Query(ctx, tt, Query{OrderBy: order})
		require.NoError(t, err)
		assert.Equal(t, names(a), names(b), order)

		again, err := engine.Query(ctx, d, Query{OrderBy: order})
		require.NoError(t, err)
		assert.Equal(t, names(a), names(again), order)
	}
}

func TestLimitAndOffset(t *testing.T) {
	s := storage.NewMemoryStore()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordRow(tabular.Entity(fmt.Sprintf("r%d", i)), []tabular.Cell{
			tabular.NewCell("n", tabular.Int(int64(i)), t0),
		}))
	}
	_, err := s.Commit()
	require.NoError(t, err)

	engine := NewEngine(Options{})
	d := view.NewDirect(s)
	ctx := context.Background()

	rows, err := engine.Query(ctx, d, Query{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []tabular.Entity{"r0", "r1", "r2"}, names(rows))

	rows, err = engine.Query(ctx, d, Query{Limit: 3, Offset: 8})
	require.NoError(t, err)
	assert.Equal(t, []tabular.Entity{"r8", "r9"}, names(rows))

	// Offset counts rows that passed the filter
	rows, err = engine.Query(ctx, d, Query{Where: "n >= 4", Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []tabular.Entity{"r5", "r6"}, names(rows))

	rows, err = engine.Query(ctx, d, Query{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInvalidQueries(t *testing.T) {
	engine := NewEngine(Options{})
	d := view.NewDirect(scenarioStore(t))

	for _, q := range []Query{
		{OrderBy: "k1"},
		{OrderBy: "random()"},
		{Where: "k1 ="},
		{Where: "((k1 = 1)"},
		{Limit: -1},
		{Offset: -2},
	} {
		_, err := engine.Query(context.Background(), d, q)
		assert.True(t, errors.Is(err, tabular.ErrInvalidQuery), "%s: %v", q, err)
		assert.Equal(t, tabular.KindInvalidQuery, tabular.KindOf(err))
	}
}

func TestDanglingViewQuery(t *testing.T) {
	engine := NewEngine(Options{})
	s := scenarioStore(t)
	tt := view.NewTransposed(view.NewTransposed(view.NewDirect(s), view.Options{}), view.Options{})
	require.NoError(t, s.Release())

	_, err := engine.Query(context.Background(), tt, Query{})
	assert.True(t, errors.Is(err, tabular.ErrDanglingView), "%v", err)
}

func TestQueryCancellation(t *testing.T) {
	engine := NewEngine(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Query(ctx, view.NewDirect(scenarioStore(t)), Query{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentQueriesShareOneIndex(t *testing.T) {
	engine := NewEngine(Options{})
	tv := view.NewTransposed(view.NewDirect(scenarioStore(t)), view.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := engine.Query(context.Background(), tv, Query{OrderBy: "rowHash()"})
			if assert.NoError(t, err) {
				assert.Equal(t, []tabular.Entity{"k2", "k1"}, names(rows))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, tv.Builds())
}

func TestQueryAnnotations(t *testing.T) {
	var mu sync.Mutex
	var events []annotations.Event
	engine := NewEngine(Options{Handler: func(e annotations.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})

	_, err := engine.Query(context.Background(), view.NewDirect(scenarioStore(t)), Query{Limit: 1})
	require.NoError(t, err)

	var got []string
	for _, e := range events {
		got = append(got, e.Name)
	}
	assert.Equal(t, []string{
		annotations.QueryInvoked,
		annotations.QuerySorted,
		annotations.QueryRowsFound,
		annotations.QueryComplete,
	}, got)
	last := events[len(events)-1]
	assert.Equal(t, true, last.Data["success"])
	assert.Equal(t, 1, last.Data["rows.count"])

	events = nil
	_, err = engine.Query(context.Background(), view.NewDirect(scenarioStore(t)), Query{OrderBy: "nope"})
	require.Error(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, annotations.ErrorQueryParsing, events[1].Name)
	assert.Equal(t, false, events[2].Data["success"])
}

func TestRowJSON(t *testing.T) {
	row := Row{Name: "u2", Columns: []tabular.Cell{
		one("k1"),
		tabular.NewCell("seen", tabular.Timestamp(t0.Add(time.Hour)), t0),
		tabular.NewCell("name", tabular.String("bob"), t0),
		tabular.NewCell("score", tabular.Number(math.NaN()), t0),
	}}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rowName":"u2","columns":[
		["k1",1,"2015-01-01T00:00:00Z"],
		["seen",{"ts":"2015-01-01T01:00:00Z"},"2015-01-01T00:00:00Z"],
		["name","bob","2015-01-01T00:00:00Z"],
		["score",{"num":"NaN"},"2015-01-01T00:00:00Z"]]}`, string(data))

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, row.Equal(back))
	assert.Equal(t, tabular.KindNumber, back.Columns[3].V.Kind(), "NaN stays a number")

	err = json.Unmarshal([]byte(`{"rowName":"x","columns":[["a",null,"2015-01-01T00:00:00Z"]]}`), &back)
	assert.True(t, errors.Is(err, tabular.ErrInvalidArgument), "%v", err)
}

func TestTableFormatter(t *testing.T) {
	formatter := NewTableFormatter()

	assert.Equal(t, "_No rows_", formatter.FormatRows(nil))

	rows, err := NewEngine(Options{}).Query(context.Background(), view.NewDirect(scenarioStore(t)), Query{})
	require.NoError(t, err)

	out := formatter.FormatRows(rows)
	assert.Contains(t, out, "rowName")
	assert.Contains(t, out, "k2")
	assert.Contains(t, out, "u1")
	assert.Contains(t, out, "2 rows")

	facts := formatter.FormatFacts(rows)
	assert.Contains(t, facts, "timestamp")
	assert.Contains(t, facts, "2015-01-01 00:00:00")

	formatter.MaxWidth = 6
	assert.Equal(t, "abc...", formatter.truncate(strings.Repeat("abc", 5)))

	// "ééé" is 6 bytes; a 3 byte cut would land inside the second rune
	cut := formatter.truncate("éééé")
	assert.True(t, utf8.ValidString(cut), "%q", cut)
	assert.Equal(t, "é...", cut)
}
