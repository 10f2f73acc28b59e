package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure that a configuration file can be decoded correctly.
func TestDecode(t *testing.T) {
	input := `
port = 9000
backend = "badger"
data-dir = "/tmp/tabular"
index-workers = 4
log-json = true
max-lines = 1000
`
	config := NewConfig()
	require.NoError(t, config.Decode(bytes.NewBufferString(input)))
	assert.Equal(t, uint(9000), config.Port)
	assert.Equal(t, "badger", config.Backend)
	assert.Equal(t, "/tmp/tabular", config.DataDir)
	assert.Equal(t, 4, config.IndexWorkers)
	assert.Equal(t, DefaultBatchSize, config.BatchSize, "unset keys keep their default")
	assert.True(t, config.LogJSON)
	assert.Equal(t, 1000, config.MaxLines)
	assert.NoError(t, config.Validate())

	opts := config.CatalogOptions(nil)
	assert.Equal(t, "/tmp/tabular", opts.Badger.Dir)
	assert.Equal(t, 4, opts.View.Workers)
}

// Ensure that a badly formatted config file returns an error.
func TestDecodeBadConfig(t *testing.T) {
	config := NewConfig()
	assert.Error(t, config.Decode(bytes.NewBufferString("port=9000\nbackend=\"mem\n")))
	assert.Error(t, config.Decode(bytes.NewBufferString(`port = "high"`)))
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabular.toml")
	require.NoError(t, os.WriteFile(path, []byte(`backend = "tape"`), 0o644))

	config := NewConfig()
	require.NoError(t, config.DecodeFile(path))
	assert.Error(t, config.Validate())
	assert.Error(t, config.DecodeFile(path+".missing"))
}
