package hub

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// decodeFields decodes raw document fields into out (a pointer to an entity).
// Strings are accepted for time fields so JSON-backed stores decode the same
// way as stores that keep native timestamps.
func decodeFields(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		ZeroFields: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// requireString returns an error unless fields[key] is a non-empty string.
func requireString(fields map[string]any, key string) error {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return fmt.Errorf("missing required field %q", key)
	}
	return nil
}

// requireNumber returns an error unless fields[key] is numeric.
func requireNumber(fields map[string]any, key string) error {
	if _, ok := asFloat(Normalize(fields[key])); !ok {
		return fmt.Errorf("field %q is not a number", key)
	}
	return nil
}
