package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Outcome classifies a raw field value.
type Outcome uint8

const (
	// Missing means the field is absent, null or blank.
	Missing Outcome = iota
	// Invalid means the field is present but of the wrong type or unparseable.
	Invalid
	// Present means the field parsed into a usable value.
	Present
)

func (o Outcome) String() string {
	switch o {
	case Missing:
		return "missing"
	case Invalid:
		return "invalid"
	default:
		return "present"
	}
}

// Field is a typed parse outcome. Value is only meaningful when Outcome is Present.
type Field[T any] struct {
	Outcome Outcome
	Value   T
}

// Ok reports whether the field holds a value.
func (f Field[T]) Ok() bool { return f.Outcome == Present }

// Ptr returns a pointer to the value, or nil when the field is not Present.
func (f Field[T]) Ptr() *T {
	if f.Outcome != Present {
		return nil
	}
	v := f.Value
	return &v
}

func missing[T any]() Field[T] { return Field[T]{Outcome: Missing} }
func invalid[T any]() Field[T] { return Field[T]{Outcome: Invalid} }
func present[T any](v T) Field[T] {
	return Field[T]{Outcome: Present, Value: v}
}

// isBlank treats nil, NaN and whitespace-only strings as absent.
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	}
	return false
}

// StringField parses a field that must be a string.
func StringField(row Row, key string) Field[string] {
	v, ok := row[key]
	if !ok || isBlank(v) {
		return missing[string]()
	}
	s, isString := v.(string)
	if !isString {
		return invalid[string]()
	}
	return present(s)
}

// NumberField parses a numeric field. Numeric strings are accepted; booleans
// and non-finite values are invalid.
func NumberField(row Row, key string) Field[float64] {
	v, ok := row[key]
	if !ok || isBlank(v) {
		return missing[float64]()
	}
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return invalid[float64]()
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return invalid[float64]()
		}
		f = parsed
	default:
		return invalid[float64]()
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return invalid[float64]()
	}
	return present(f)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
}

// ParseTime parses the timestamp formats found in trip feeds. Values without
// a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// TimeField parses a timestamp field. Only strings and time values are accepted.
func TimeField(row Row, key string) Field[time.Time] {
	v, ok := row[key]
	if !ok || isBlank(v) {
		return missing[time.Time]()
	}
	switch t := v.(type) {
	case time.Time:
		return present(t.UTC())
	case string:
		ts, parsed := ParseTime(t)
		if !parsed {
			return invalid[time.Time]()
		}
		return present(ts)
	default:
		return invalid[time.Time]()
	}
}
