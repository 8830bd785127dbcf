package thing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseNumber converts a loosely typed value into a float64.
// The second return value is false when the value is missing or not a
// finite number; callers treat that as "absent" and never fail on it.
func ParseNumber(v any) (float64, bool) {
	var f float64

	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case *string:
		if n == nil {
			return 0, false
		}
		return ParseNumber(*n)
	case *int:
		if n == nil {
			return 0, false
		}
		f = float64(*n)
	case *float64:
		if n == nil {
			return 0, false
		}
		f = *n
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt is ParseNumber for integral fields. Fractional input is truncated.
func ParseInt(v any) (int, bool) {
	f, ok := ParseNumber(v)
	if !ok {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// OptionalInt returns a pointer to the parsed value, or nil when absent.
func OptionalInt(v any) *int {
	n, ok := ParseInt(v)
	if !ok {
		return nil
	}
	return &n
}

// OptionalFloat returns a pointer to the parsed value, or nil when absent.
func OptionalFloat(v any) *float64 {
	f, ok := ParseNumber(v)
	if !ok {
		return nil
	}
	return &f
}
