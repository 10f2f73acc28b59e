package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-tabular/tabular"
	"github.com/wbrown/janus-tabular/tabular/executor"
	"github.com/wbrown/janus-tabular/tabular/view"
)

var t0 = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

func one(a tabular.Attribute) tabular.Cell {
	return tabular.NewCell(a, tabular.Int(1), t0)
}

func TestParseConfigVariants(t *testing.T) {
	_, spec, err := ParseConfig([]byte(`{"type":"sparse.mutable","id":"raw"}`))
	require.NoError(t, err)
	assert.Equal(t, MutableSpec{ID: "raw"}, spec)

	_, spec, err = ParseConfig([]byte(`{"type":"mutable","params":{"backend":"badger"}}`))
	require.NoError(t, err)
	assert.Equal(t, MutableSpec{Backend: BackendBadger}, spec)

	_, spec, err = ParseConfig([]byte(`{"type":"transposed","id":"tt","params":{"dataset":
		{"type":"transposed","params":{"dataset":{"id":"raw"}}}}}`))
	require.NoError(t, err)
	assert.Equal(t, TransposedSpec{ID: "tt", Inner: TransposedSpec{Inner: RefSpec{ID: "raw"}}}, spec)
}

func TestParseConfigRejectsEagerly(t *testing.T) {
	for name, cfg := range map[string]string{
		"unknown type":         `{"type":"beh","id":"x"}`,
		"transposed no inner":  `{"type":"transposed","id":"x"}`,
		"inner missing fields": `{"type":"transposed","params":{"dataset":{}}}`,
		"bad nested type":      `{"type":"transposed","params":{"dataset":{"type":"nope"}}}`,
		"mutable with inner":   `{"type":"mutable","params":{"dataset":{"id":"a"}}}`,
		"unknown backend":      `{"type":"mutable","params":{"backend":"tape"}}`,
		"top-level reference":  `{"id":"raw"}`,
		"params without type":  `{"type":"transposed","params":{"dataset":{"id":"a","params":{}}}}`,
		"unknown field":        `{"type":"mutable","idd":"x"}`,
		"slash in id":          `{"type":"mutable","id":"a/b"}`,
		"not json":             `{"type":`,
	} {
		_, _, err := ParseConfig([]byte(cfg))
		assert.True(t, errors.Is(err, tabular.ErrInvalidArgument), "%s: %v", name, err)
	}
}

func TestCreateAndQueryTransposedChain(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	defer c.Close()

	raw, err := c.Create(ctx, Config{Type: TypeMutable, ID: "raw"})
	require.NoError(t, err)
	require.NoError(t, raw.RecordRow("u1", []tabular.Cell{one("k1")}))
	require.NoError(t, raw.RecordRow("u2", []tabular.Cell{one("k1"), one("k2")}))
	_, err = raw.Commit()
	require.NoError(t, err)

	tt, err := c.Create(ctx, Config{Type: TypeTransposed, ID: "tt", Params: &Params{
		Dataset: &Config{Type: TypeTransposed, ID: "t", Params: &Params{Dataset: &Config{ID: "raw"}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "transposed(transposed(direct))", view.Describe(tt.View()))
	assert.Equal(t, []string{"raw", "t", "tt"}, c.List())

	q := executor.Query{OrderBy: "rowHash()"}
	want, err := c.Query(ctx, "raw", q)
	require.NoError(t, err)
	got, err := c.Query(ctx, "tt", q)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]))
	}

	mid, err := c.Query(ctx, "t", q)
	require.NoError(t, err)
	require.Len(t, mid, 2)
	assert.Equal(t, tabular.Entity("k2"), mid[0].Name)

	err = tt.RecordRow("x", []tabular.Cell{one("k")})
	assert.True(t, errors.Is(err, tabular.ErrInvalidArgument))
	_, err = tt.Commit()
	assert.True(t, errors.Is(err, tabular.ErrInvalidArgument))
}

func TestCreateNestedMutableRegistersBoth(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	d, err := c.Create(context.Background(), Config{Type: TypeTransposed, Params: &Params{
		Dataset: &Config{Type: TypeMutable, ID: "inner"},
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID, "missing ids are generated")
	assert.ElementsMatch(t, []string{"inner", d.ID}, c.List())
}

func TestCreateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	defer c.Close()

	_, err := c.Create(ctx, Config{Type: TypeTransposed, ID: "t", Params: &Params{Dataset: &Config{ID: "ghost"}}})
	assert.True(t, errors.Is(err, tabular.ErrNotFound), "%v", err)
	assert.Empty(t, c.List())

	_, err = c.Create(ctx, Config{Type: TypeMutable, ID: "a"})
	require.NoError(t, err)
	_, err = c.Create(ctx, Config{Type: TypeTransposed, ID: "b", Params: &Params{Dataset: &Config{Type: TypeMutable, ID: "a"}}})
	assert.True(t, errors.Is(err, tabular.ErrInvalidArgument), "%v", err)
	assert.Equal(t, []string{"a"}, c.List())
}

func TestDeleteLeavesDependentsDangling(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	defer c.Close()

	raw, err := c.Create(ctx, Config{Type: TypeMutable, ID: "raw"})
	require.NoError(t, err)
	require.NoError(t, raw.RecordRow("u1", []tabular.Cell{one("k1")}))
	_, err = raw.Commit()
	require.NoError(t, err)
	_, err = c.Create(ctx, Config{Type: TypeTransposed, ID: "t", Params: &Params{Dataset: &Config{ID: "raw"}}})
	require.NoError(t, err)

	require.NoError(t, c.Delete("raw"))
	_, err = c.Get("raw")
	assert.True(t, errors.Is(err, tabular.ErrNotFound))
	assert.True(t, errors.Is(c.Delete("raw"), tabular.ErrNotFound))

	_, err = c.Query(ctx, "t", executor.Query{})
	assert.True(t, errors.Is(err, tabular.ErrDanglingView), "%v", err)

	d, err := c.Get("t")
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, d.Stats().Status)
}

func TestPutReplacesAndKeepsOldOnFailure(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	defer c.Close()

	first, err := c.Put(ctx, "ds", Config{Type: TypeMutable})
	require.NoError(t, err)
	assert.Equal(t, "ds", first.ID)

	_, err = c.Put(ctx, "ds", Config{Type: TypeTransposed, Params: &Params{Dataset: &Config{ID: "ghost"}}})
	assert.True(t, errors.Is(err, tabular.ErrNotFound))
	still, err := c.Get("ds")
	require.NoError(t, err)
	assert.Same(t, first, still)
	assert.Nil(t, first.Store().Check())

	second, err := c.Put(ctx, "ds", Config{Type: TypeMutable, Params: &Params{Backend: BackendBadger}})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, first.Store().Released())

	_, err = c.Put(ctx, "ds", Config{Type: TypeMutable, ID: "other"})
	assert.True(t, errors.Is(err, tabular.ErrInvalidArgument))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	c := New(Options{Backend: BackendBadger})
	defer c.Close()

	raw, err := c.Create(ctx, Config{Type: TypeMutable, ID: "raw"})
	require.NoError(t, err)
	_, err = c.Create(ctx, Config{Type: TypeTransposed, ID: "t", Params: &Params{Dataset: &Config{ID: "raw"}}})
	require.NoError(t, err)

	st := raw.Stats()
	assert.Equal(t, StatusEmpty, st.Status)
	assert.Equal(t, TypeMutable, st.Type)

	require.NoError(t, raw.RecordRow("u1", []tabular.Cell{one("k1"), one("k2")}))
	assert.Equal(t, 2, raw.Stats().PendingFacts)
	_, err = raw.Commit()
	require.NoError(t, err)

	st = raw.Stats()
	assert.Equal(t, StatusCommitted, st.Status)
	assert.Equal(t, uint64(1), st.Epoch)
	assert.Equal(t, 1, st.Rows)
	assert.Equal(t, 2, st.Facts)
	assert.Greater(t, st.ApproxBytes, int64(0))

	_, err = c.Query(ctx, "t", executor.Query{})
	require.NoError(t, err)

	all := c.Stats()
	require.Len(t, all, 2)
	tst := all[1]
	assert.Equal(t, "t", tst.ID)
	assert.Equal(t, "raw", tst.Inner)
	assert.Equal(t, StatusCommitted, tst.Status)
	assert.True(t, tst.IndexBuilt)
	assert.Equal(t, 2, tst.Rows)
	assert.Equal(t, 2, tst.Facts)
}
