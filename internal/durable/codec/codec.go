// Package codec defines the pluggable serialization contract used to turn
// orchestrator/activity payloads into bytes for history storage and worker
// transport. spec.md §9 requires only that serialize/deserialize round-trip
// through this seam; payload externalization and large-payload handling are
// explicitly out of scope (spec.md §1).
package codec

import "encoding/json"

// Codec marshals and unmarshals arbitrary Go values to/from the byte slices
// stored in history events and status records.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// wrappedValue embeds a type tag alongside the payload so that a
// map[string]any destination (the common case when the worker's static
// target type is unknown) can recover the original dynamic type on
// deserialization, per the "wrapped value" design note in spec.md §9. This
// follows the same embedded-type-tag idiom the teacher uses for
// protocol.ACPUpdateData{Type, Data}.
type wrappedValue struct {
	Type  string          `json:"$type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// JSONCodec is the reference Codec implementation: encoding/json with a
// type-tag envelope for generic map payloads.
type JSONCodec struct{}

// NewJSONCodec returns the reference codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Marshal encodes v. If v is a map[string]any (the shape used for
// polymorphic orchestrator input/output/custom-status), the encoding is
// wrapped with a type tag so Unmarshal can round-trip it without the caller
// supplying a schema.
func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(map[string]any); ok {
		inner, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wrappedValue{Type: "map", Value: inner})
	}
	return json.Marshal(v)
}

// Unmarshal decodes data into v, unwrapping the type-tag envelope if
// present.
func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	var wrapped wrappedValue
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Type != "" {
		return json.Unmarshal(wrapped.Value, v)
	}
	return json.Unmarshal(data, v)
}
