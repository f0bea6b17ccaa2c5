package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"futurehub/internal/hub"
)

// timeKey marks an encoded timestamp so it decodes back to time.Time rather
// than a string.
const timeKey = "$time"

// encodeFields serializes normalized document fields for the documents table.
func encodeFields(fields map[string]any) ([]byte, error) {
	data, err := json.Marshal(encodeValue(fields))
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{timeKey: x.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeValue(e)
		}
		return out
	default:
		return x
	}
}

// decodeFields parses a stored document into normalized fields.
// Integers stay int64.
func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	fields, ok := decodeValue(hub.Normalize(raw)).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoding document: not an object")
	}
	return fields, nil
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x[timeKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t
				}
			}
		}
		for k, e := range x {
			x[k] = decodeValue(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = decodeValue(e)
		}
		return x
	default:
		return x
	}
}
