package common

import (
	"encoding/json"
	"math"
	"strconv"
)

// HasAnyKey returns true if m contains any of the keys.
func HasAnyKey(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// FirstScalar returns the string form of the first key in m whose value is a
// non-empty string or a number. Objects, lists, booleans and nulls are skipped.
func FirstScalar(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		if s, ok := ScalarString(v); ok {
			return s, true
		}
	}
	return "", false
}

// ScalarString renders a JSON string or number as a string.
func ScalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// Float returns v as a float64 when it is a finite JSON number or numeric
// string. NaN and infinities are rejected since they cannot be re-encoded.
func Float(v any) (float64, bool) {
	var (
		f  float64
		ok bool
	)
	switch t := v.(type) {
	case float64:
		f, ok = t, true
	case json.Number:
		n, err := t.Float64()
		f, ok = n, err == nil
	case int:
		f, ok = float64(t), true
	case int64:
		f, ok = float64(t), true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		f, ok = n, err == nil
	}
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
