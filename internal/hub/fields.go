package hub

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Document field values are normalized to a small set of shapes so every
// backend evaluates paths, conditions and transforms the same way:
// map[string]any, []any, int64, float64, string, bool, time.Time and nil.

// Normalize converts v into the canonical field representation.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64, time.Time, Transform:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	}
	return v
}

// CloneFields returns a deep copy of normalized document fields.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	return cloneValue(fields).(map[string]any)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return x
	}
}

// LookupField resolves a dot-separated path. Numeric segments index arrays.
func LookupField(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			arr, ok := asSlice(node)
			if !ok {
				return nil, false
			}
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(arr) {
				return nil, false
			}
			cur = arr[i]
		}
	}
	return cur, true
}

// SetField assigns value at a dot-separated path, creating intermediate maps.
// Array elements must already exist.
func SetField(fields map[string]any, path string, value any) error {
	segs := strings.Split(path, ".")
	var cur any = fields
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return nil
			}
			next, ok := node[seg]
			if !ok || next == nil {
				next = map[string]any{}
				node[seg] = next
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return fmt.Errorf("field path %q: index %q out of range", path, seg)
			}
			if last {
				node[idx] = value
				return nil
			}
			cur = node[idx]
		default:
			return fmt.Errorf("field path %q: segment %q is not a container", path, seg)
		}
	}
	return nil
}

// ApplyFields writes update fields into a normalized document, resolving
// transforms. stamp is the value stored for ServerTimestamp.
// Keys are applied in sorted order so the outcome is deterministic.
func ApplyFields(doc map[string]any, fields map[string]any, stamp any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var value any
		switch t := fields[key].(type) {
		case serverTimestamp:
			value = stamp
		case IncrementTransform:
			cur, _ := LookupField(doc, key)
			next, err := increment(cur, t.By)
			if err != nil {
				return fmt.Errorf("incrementing %s: %w", key, err)
			}
			value = next
		case ArrayUnionTransform:
			cur, _ := LookupField(doc, key)
			arr, ok := asSlice(cur)
			if cur != nil && !ok {
				return fmt.Errorf("array union on %s: field is not an array", key)
			}
			out := append([]any{}, arr...)
			for _, v := range t.Values {
				v = Normalize(v)
				if !containsValue(out, v) {
					out = append(out, v)
				}
			}
			value = out
		default:
			value = Normalize(t)
		}
		if err := SetField(doc, key, value); err != nil {
			return err
		}
	}
	return nil
}

// ValuesEqual compares two field values; numbers compare by value regardless of type.
func ValuesEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func increment(cur any, by int64) (any, error) {
	switch n := Normalize(cur).(type) {
	case nil:
		return by, nil
	case int64:
		return n + by, nil
	case float64:
		return n + float64(by), nil
	default:
		return nil, fmt.Errorf("field is not numeric: %T", cur)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out, _ := Normalize(v).([]any)
	return out, true
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if ValuesEqual(e, v) {
			return true
		}
	}
	return false
}
