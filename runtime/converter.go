package runtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs converts a resolved input map into a typed struct using
// mapstructure. Module packs use this so handlers work with declared fields
// instead of raw map assertions. json tags drive the field mapping and
// string durations/timestamps are converted.
func DecodeArgs(args map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("failed to decode args: %w", err)
	}
	return nil
}

// EncodeResult converts a typed result struct into the map[string]any shape
// the run context stores, via a JSON round-trip so json tags and nested
// structs are respected.
func EncodeResult(s any) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return result, nil
}

// ToStringValueMap flattens a map's values to strings, used when passing
// resolved inputs to interfaces that only accept string pairs (HTTP headers,
// query parameters).
func ToStringValueMap(m map[string]any) map[string]string {
	result := make(map[string]string, len(m))
	for key, value := range m {
		switch v := value.(type) {
		case string:
			result[key] = v
		case nil:
			result[key] = ""
		default:
			result[key] = fmt.Sprintf("%v", v)
		}
	}
	return result
}
