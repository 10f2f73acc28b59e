package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wbrown/janus-tabular/tabular"
)

// Dataset type names accepted in configurations
const (
	TypeMutable       = "mutable"
	TypeSparseMutable = "sparse.mutable"
	TypeTransposed    = "transposed"
)

// Backend names for mutable datasets
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config is the JSON form of a dataset declaration:
//
//	{"type": "transposed", "id": "t", "params": {"dataset": {"id": "raw"}}}
//
// A nested config carrying only an id refers to an existing dataset.
type Config struct {
	Type   string  `json:"type,omitempty"`
	ID     string  `json:"id,omitempty"`
	Params *Params `json:"params,omitempty"`
}

// Params holds type-specific settings
type Params struct {
	// Dataset is the inner dataset of a transposed dataset
	Dataset *Config `json:"dataset,omitempty"`
	// Backend selects the storage of a mutable dataset
	Backend string `json:"backend,omitempty"`
}

// ParseConfig decodes a JSON dataset declaration and validates it
func ParseConfig(data []byte) (Config, Spec, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, nil, tabular.InvalidArgumentf("malformed dataset config: %v", err)
	}
	spec, err := cfg.Spec()
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, spec, nil
}

// Spec is a validated dataset declaration. Exactly one of MutableSpec,
// TransposedSpec and RefSpec.
type Spec interface {
	// DatasetID is the declared id; empty when one should be generated
	DatasetID() string
	isSpec()
}

// MutableSpec declares a new mutable dataset over its own FactStore
type MutableSpec struct {
	ID      string
	Backend string
}

// TransposedSpec declares a transposed view over Inner
type TransposedSpec struct {
	ID    string
	Inner Spec
}

// RefSpec refers to a dataset that already exists
type RefSpec struct {
	ID string
}

func (s MutableSpec) DatasetID() string    { return s.ID }
func (s TransposedSpec) DatasetID() string { return s.ID }
func (s RefSpec) DatasetID() string        { return s.ID }

func (MutableSpec) isSpec()    {}
func (TransposedSpec) isSpec() {}
func (RefSpec) isSpec()        {}

// Spec validates the config eagerly and converts it into its variant. A bare
// reference is only valid nested inside another config.
func (c Config) Spec() (Spec, error) {
	spec, err := c.spec(0)
	if err != nil {
		return nil, err
	}
	if _, ok := spec.(RefSpec); ok {
		return nil, tabular.InvalidArgumentf("dataset %q: a dataset config needs a type", c.ID)
	}
	return spec, nil
}

func (c Config) spec(depth int) (Spec, error) {
	if err := validateID(c.ID); err != nil {
		return nil, err
	}

	switch c.Type {
	case "":
		if c.ID == "" {
			return nil, tabular.InvalidArgumentf("dataset config at depth %d has neither type nor id", depth)
		}
		if c.Params != nil {
			return nil, tabular.InvalidArgumentf("dataset %q: params given without a type", c.ID)
		}
		return RefSpec{ID: c.ID}, nil

	case TypeMutable, TypeSparseMutable:
		backend := ""
		if c.Params != nil {
			if c.Params.Dataset != nil {
				return nil, tabular.InvalidArgumentf("dataset %q: a %s dataset takes no inner dataset", c.ID, c.Type)
			}
			backend = c.Params.Backend
		}
		switch backend {
		case "", BackendMemory, BackendBadger:
		default:
			return nil, tabular.InvalidArgumentf("dataset %q: unknown backend %q", c.ID, backend)
		}
		return MutableSpec{ID: c.ID, Backend: backend}, nil

	case TypeTransposed:
		if c.Params == nil || c.Params.Dataset == nil {
			return nil, tabular.InvalidArgumentf("dataset %q: transposed requires params.dataset", c.ID)
		}
		if c.Params.Backend != "" {
			return nil, tabular.InvalidArgumentf("dataset %q: transposed datasets have no backend", c.ID)
		}
		inner, err := c.Params.Dataset.spec(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", c.ID, err)
		}
		return TransposedSpec{ID: c.ID, Inner: inner}, nil
	}

	return nil, tabular.InvalidArgumentf("dataset %q: unknown type %q", c.ID, c.Type)
}

func validateID(id string) error {
	if len(id) > tabular.MaxIdentifierLength {
		return tabular.InvalidArgumentf("dataset id is %d bytes, limit is %d", len(id), tabular.MaxIdentifierLength)
	}
	if strings.ContainsAny(id, "/?#") {
		return tabular.InvalidArgumentf("dataset id %q must not contain '/', '?' or '#'", id)
	}
	return nil
}
