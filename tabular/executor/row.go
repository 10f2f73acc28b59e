package executor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wbrown/janus-tabular/tabular"
)

// Row is one query result: the row identifier and all of its cells in
// canonical order
type Row struct {
	Name    tabular.Entity
	Columns []tabular.Cell
}

// MarshalJSON renders {"rowName": name, "columns": [[attr, value, ts], ...]}
func (r Row) MarshalJSON() ([]byte, error) {
	columns := make([][3]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		columns[i] = [3]interface{}{string(c.A), c.V, c.T.Format(time.RFC3339Nano)}
	}
	return json.Marshal(struct {
		RowName string           `json:"rowName"`
		Columns [][3]interface{} `json:"columns"`
	}{string(r.Name), columns})
}

// UnmarshalJSON accepts the MarshalJSON form
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw struct {
		RowName string               `json:"rowName"`
		Columns [][3]json.RawMessage `json:"columns"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cells := make([]tabular.Cell, len(raw.Columns))
	for i, col := range raw.Columns {
		c, err := DecodeColumn(col)
		if err != nil {
			return fmt.Errorf("row %q column %d: %w", raw.RowName, i, err)
		}
		cells[i] = c
	}
	r.Name = tabular.Entity(raw.RowName)
	r.Columns = cells
	return nil
}

// DecodeColumn parses one [attr, value, ts] triple
func DecodeColumn(col [3]json.RawMessage) (tabular.Cell, error) {
	var attr string
	if err := json.Unmarshal(col[0], &attr); err != nil {
		return tabular.Cell{}, tabular.InvalidArgumentf("column name must be a string: %v", err)
	}
	var v tabular.Value
	if err := json.Unmarshal(col[1], &v); err != nil {
		return tabular.Cell{}, tabular.InvalidArgumentf("bad value for column %q: %v", attr, err)
	}
	ts, err := decodeTime(col[2])
	if err != nil {
		return tabular.Cell{}, tabular.InvalidArgumentf("bad timestamp for column %q: %v", attr, err)
	}
	return tabular.NewCell(tabular.Attribute(attr), v, ts), nil
}

// decodeTime accepts an RFC 3339 string or Unix seconds
func decodeTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 string or Unix seconds, got %s", raw)
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)), nil
}

// Equal reports whether two rows have the same name and cells
func (r Row) Equal(other Row) bool {
	if r.Name != other.Name || len(r.Columns) != len(other.Columns) {
		return false
	}
	for i := range r.Columns {
		if !r.Columns[i].Equal(other.Columns[i]) {
			return false
		}
	}
	return true
}
