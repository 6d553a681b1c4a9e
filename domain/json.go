package domain

import "github.com/goccy/go-json"

// marshalJSON and unmarshalJSON centralize the JSON codec choice (goccy/
// go-json, a drop-in encoding/json replacement) for every entity's custom
// MarshalJSON/UnmarshalJSON method, matching how core/registry encodes.
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// RawMessage re-exports the JSON codec's raw message type for entities
// that carry opaque JSON columns (params, metadata, payload).
type RawMessage = json.RawMessage
