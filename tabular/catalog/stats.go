package catalog

import (
	"time"

	"github.com/wbrown/janus-tabular/tabular/storage"
	"github.com/wbrown/janus-tabular/tabular/view"
)

// Dataset status values
const (
	StatusEmpty     = "empty"
	StatusCommitted = "committed"
	StatusReleased  = "released"
)

// DatasetStats describes a dataset for the control API
type DatasetStats struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	View         string    `json:"view"`
	Inner        string    `json:"inner,omitempty"`
	Created      time.Time `json:"created"`
	Epoch        uint64    `json:"epoch"`
	Rows         int       `json:"rows"`
	Facts        int       `json:"facts"`
	PendingFacts int       `json:"pendingFacts"`
	ApproxBytes  int64     `json:"approxBytes"`
	IndexBuilt   bool      `json:"indexBuilt,omitempty"`
}

// Stats reports the dataset's status and size. Transposed datasets report
// their index size, which is zero until the first read.
func (d *Dataset) Stats() DatasetStats {
	st := DatasetStats{
		ID:      d.ID,
		Type:    d.Type,
		View:    view.Describe(d.view),
		Inner:   d.inner,
		Created: d.Created,
	}

	root := rootStore(d.view)
	switch {
	case d.view.Check() != nil:
		st.Status = StatusReleased
	case root != nil && root.Committed():
		st.Status = StatusCommitted
	default:
		st.Status = StatusEmpty
	}
	if root != nil {
		st.Epoch = root.Epoch()
	}

	if d.store != nil {
		ss := d.store.Stats()
		st.Rows = ss.Backend.Entities
		st.Facts = ss.Backend.Facts
		st.PendingFacts = ss.PendingFacts
		st.ApproxBytes = ss.Backend.ApproxBytes
	} else if t, ok := d.view.(*view.Transposed); ok {
		st.IndexBuilt = t.Built()
		st.Rows, st.Facts = t.Stats()
	}
	return st
}

// rootStore follows transpositions down to the store at the bottom
func rootStore(v view.View) *storage.FactStore {
	for {
		switch x := v.(type) {
		case *view.Direct:
			return x.Store()
		case *view.Transposed:
			v = x.Inner()
		default:
			return nil
		}
	}
}

// Stats reports every registered dataset in id order
func (c *Catalog) Stats() []DatasetStats {
	ids := c.List()
	out := make([]DatasetStats, 0, len(ids))
	for _, id := range ids {
		d, err := c.Get(id)
		if err != nil {
			continue // deleted concurrently
		}
		out = append(out, d.Stats())
	}
	return out
}
