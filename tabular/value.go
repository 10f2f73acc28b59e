package tabular

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// ValueKind is the tag of a Value
type ValueKind uint8

const (
	KindEmpty ValueKind = iota // Zero Value, never stored
	KindString
	KindNumber
	KindTimestamp
)

// String returns the name of the kind
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTimestamp:
		return "timestamp"
	default:
		return "empty"
	}
}

// Value is a tagged union over {string, number, timestamp}.
// Storage treats it as opaque; only equality, ordering and serialization are defined.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	ts   time.Time
}

// String creates a string value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric value
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int creates a numeric value from an integer
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }

// Timestamp creates a timestamp value
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: NormalizeTime(t)} }

// Kind returns the tag
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty reports whether v is the zero Value
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// AsString returns the string payload
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric payload
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsTimestamp returns the timestamp payload
func (v Value) AsTimestamp() (time.Time, bool) { return v.ts, v.kind == KindTimestamp }

// Equal compares kind and payload
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num || (math.IsNaN(v.num) && math.IsNaN(other.num))
	case KindTimestamp:
		return v.ts.Equal(other.ts)
	}
	return true
}

// String renders the payload for display
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	}
	return "nil"
}

// timestampJSON is the wire shape of a timestamp value, keeping it distinct from a string
type timestampJSON struct {
	TS string `json:"ts"`
}

// numberJSON carries NaN and the infinities, which JSON numbers cannot
type numberJSON struct {
	Num string `json:"num"`
}

// MarshalJSON encodes strings and finite numbers natively, timestamps as
// {"ts": "..."} and non-finite numbers as {"num": "NaN"}
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return json.Marshal(numberJSON{Num: strconv.FormatFloat(v.num, 'g', -1, 64)})
		}
		return json.Marshal(v.num)
	case KindTimestamp:
		return json.Marshal(timestampJSON{TS: v.ts.Format(time.RFC3339Nano)})
	}
	return []byte("null"), nil
}

// UnmarshalJSON is the inverse of MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return InvalidArgumentf("malformed value %s", data)
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON (or native Go) value to a Value
func ValueOf(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, InvalidArgumentf("malformed number %q", x.String())
		}
		return Number(f), nil
	case time.Time:
		return Timestamp(x), nil
	case Value:
		return x, nil
	case map[string]interface{}:
		if n, ok := x["num"].(string); ok && len(x) == 1 {
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return Value{}, InvalidArgumentf("malformed number value %q", n)
			}
			return Number(f), nil
		}
		s, ok := x["ts"].(string)
		if !ok || len(x) != 1 {
			return Value{}, InvalidArgumentf("object values must have the form {\"ts\": \"<RFC3339>\"} or {\"num\": \"NaN\"}")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, errors.Mark(errors.Wrapf(err, "malformed timestamp value %q", s), ErrInvalidArgument)
		}
		return Timestamp(t), nil
	case nil:
		return Value{}, InvalidArgumentf("null is not a storable value")
	}
	return Value{}, InvalidArgumentf("unsupported value type %T", raw)
}
