package ipainfo

import (
	"fmt"
	"math"
	"time"

	"howett.net/plist"
)

// Dict is a decoded property list dictionary. Values are one of string,
// int64, bool, time.Time, []any, Dict or nil for value types that are not
// carried over (real, data, UID).
type Dict map[string]any

// ParsePlist decodes an XML, binary or OpenStep property list whose root is
// a dictionary
func ParsePlist(data []byte) (Dict, error) {
	var root any
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestDecode, err)
	}

	m, ok := root.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: root is %T, not a dictionary", ErrManifestDecode, root)
	}

	return normalizeDict(m), nil
}

func normalizeDict(m map[string]interface{}) Dict {
	d := make(Dict, len(m))
	for k, v := range m {
		d[k] = normalizeValue(v)
	}
	return d
}

func normalizeValue(v interface{}) any {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return v
	case time.Time:
		return v
	case int64:
		return v
	case uint64:
		if v > math.MaxInt64 {
			return nil
		}
		return int64(v)
	case []interface{}:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]interface{}:
		return normalizeDict(v)
	default:
		return nil
	}
}

// String returns the string value stored under key
func (d Dict) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// StringOr returns the string value stored under key or an empty string
func (d Dict) StringOr(key string) string {
	s, _ := d.String(key)
	return s
}

// Int returns the integer value stored under key
func (d Dict) Int(key string) (int64, bool) {
	i, ok := d[key].(int64)
	return i, ok
}

// Bool returns the boolean value stored under key
func (d Dict) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Time returns the date value stored under key
func (d Dict) Time(key string) (time.Time, bool) {
	t, ok := d[key].(time.Time)
	return t, ok
}

// Array returns the array value stored under key
func (d Dict) Array(key string) ([]any, bool) {
	a, ok := d[key].([]any)
	return a, ok
}

// Dict returns the nested dictionary stored under key
func (d Dict) Dict(key string) (Dict, bool) {
	n, ok := d[key].(Dict)
	return n, ok
}

// Ints returns the integer elements of the array stored under key,
// skipping elements of any other type
func (d Dict) Ints(key string) ([]int, bool) {
	a, ok := d.Array(key)
	if !ok {
		return nil, false
	}

	ints := make([]int, 0, len(a))
	for _, e := range a {
		if i, ok := e.(int64); ok {
			ints = append(ints, int(i))
		}
	}
	return ints, true
}

// Strings returns the string elements of the array stored under key
func (d Dict) Strings(key string) ([]string, bool) {
	a, ok := d.Array(key)
	if !ok {
		return nil, false
	}

	strs := make([]string, 0, len(a))
	for _, e := range a {
		if s, ok := e.(string); ok {
			strs = append(strs, s)
		}
	}
	return strs, true
}
