package main

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wbrown/janus-tabular/tabular/annotations"
	"github.com/wbrown/janus-tabular/tabular/catalog"
	"github.com/wbrown/janus-tabular/tabular/storage"
	"github.com/wbrown/janus-tabular/tabular/view"
)

const (
	DefaultPort         = 9600
	DefaultBackend      = catalog.BackendMemory
	DefaultIndexWorkers = 0 // NumCPU
	DefaultBatchSize    = 100
)

// Config represents the settings shared by every tabular command
type Config struct {
	Port         uint   `toml:"port"`
	Backend      string `toml:"backend"`
	DataDir      string `toml:"data-dir"`
	IndexWorkers int    `toml:"index-workers"`
	BatchSize    int    `toml:"batch-size"`
	LogJSON      bool   `toml:"log-json"`
	MaxLines     int    `toml:"max-lines"`
}

// NewConfig creates a Config with the default settings
func NewConfig() *Config {
	return &Config{
		Port:         DefaultPort,
		Backend:      DefaultBackend,
		IndexWorkers: DefaultIndexWorkers,
		BatchSize:    DefaultBatchSize,
	}
}

// Decode reads a TOML document into c. Keys missing from the document keep
// their current value.
func (c *Config) Decode(r io.Reader) error {
	if _, err := toml.NewDecoder(r).Decode(c); err != nil {
		return err
	}
	return nil
}

// DecodeFile is Decode over the named file
func (c *Config) DecodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Decode(f)
}

// Validate rejects settings no catalog can run with
func (c *Config) Validate() error {
	switch c.Backend {
	case catalog.BackendMemory, catalog.BackendBadger:
	default:
		return errorf("unknown backend %q", c.Backend)
	}
	if c.IndexWorkers < 0 || c.BatchSize < 0 || c.MaxLines < 0 {
		return errorf("index-workers, batch-size and max-lines must not be negative")
	}
	return nil
}

// CatalogOptions derives the catalog configuration
func (c *Config) CatalogOptions(handler annotations.Handler) catalog.Options {
	return catalog.Options{
		Backend: c.Backend,
		Badger:  storage.BadgerOptions{Dir: c.DataDir},
		View: view.Options{
			Workers:   c.IndexWorkers,
			BatchSize: c.BatchSize,
		},
		Handler: handler,
	}
}
