package jfn

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Evaluation works on a closed set of value types:
// nil, bool, float64, string, time.Time, []any and map[string]any.
// Normalize converts decoded JSON/CBOR data into that set.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, float64, string:
		return val
	case time.Time:
		return val.UTC()
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				out[ks] = Normalize(item)
			}
		}
		return out
	default:
		// Structs and typed slices go through their JSON form.
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return nil
		}
		return Normalize(generic)
	}
}

// ToJSON converts an evaluation result into plain JSON data: instants
// become RFC 3339 UTC strings.
func ToJSON(v any) any {
	switch val := v.(type) {
	case time.Time:
		return FormatInstant(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToJSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ToJSON(item)
		}
		return out
	default:
		return val
	}
}

// ParseInstant accepts RFC 3339 timestamps and plain dates (midnight UTC).
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatInstant renders t as an RFC 3339 UTC timestamp.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// IsTruthy follows JavaScript-like truthiness rules.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return true
	case time.Time:
		return !val.IsZero()
	default:
		return true
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsInstant accepts an instant or a string ParseInstant understands.
func AsInstant(v any) (time.Time, bool) { return toInstant(v) }

func toInstant(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		parsed, err := ParseInstant(t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func toDisplayString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return FormatInstant(val)
	default:
		b, err := json.Marshal(ToJSON(val))
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func strictEquals(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case []any, map[string]any:
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)
	if aTime || bTime {
		ta, okA := toInstant(a)
		tb, okB := toInstant(b)
		return okA && okB && ta.Equal(tb)
	}
	_, aNum := a.(float64)
	_, bNum := b.(float64)
	if aNum || bNum {
		fa, okA := toFloat64(a)
		fb, okB := toFloat64(b)
		return okA && okB && fa == fb
	}
	return strictEquals(a, b)
}

// compareValues orders a and b. ok is false when they are not comparable.
func compareValues(a, b any) (int, bool) {
	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)
	if aTime || bTime {
		ta, okA := toInstant(a)
		tb, okB := toInstant(b)
		if !okA || !okB {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(sa, sb), true
	}
	fa, okA := toFloat64(a)
	fb, okB := toFloat64(b)
	if !okA || !okB || a == nil || b == nil {
		return 0, false
	}
	switch {
	case fa < fb:
		return -1, true
	case fa > fb:
		return 1, true
	default:
		return 0, true
	}
}
