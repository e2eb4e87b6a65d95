package serde

import (
	"encoding/json"
	"fmt"
)

// NewJSONEncoder returns an encoder function where the input value,
// which must be of type T, gets serialized to JSON.
func NewJSONEncoder[T any]() EncoderFunc {
	return typedEncoder("JSON", func(t T) ([]byte, error) {
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("serde.JSON: failed to serialize data, %w", err)
		}

		return data, nil
	})
}

// NewJSONDecoder returns a decoder function where a JSON payload
// is deserialized into the specified data type.
//
// A data factory function is required for creating new instances of the type
// (especially if pointer semantics is used).
func NewJSONDecoder[T any](factory func() T) DecodeFunc {
	return func(data []byte) (any, error) {
		model := factory()
		if err := json.Unmarshal(data, &model); err != nil {
			return nil, fmt.Errorf("serde.JSON: failed to deserialize data, %w", err)
		}

		return model, nil
	}
}

// NewJSON returns a new Codec where some data (`T`) gets serialized to
// and deserialized from JSON.
func NewJSON[T any](factory func() T) Fused {
	return Fuse(
		NewJSONEncoder[T](),
		NewJSONDecoder(factory),
	)
}

// GenericJSON returns a Codec that decodes any JSON document into its generic
// Go representation (map[string]any, []any, string, float64, bool or nil).
//
// It is the default codec for SerializerIDJSON.
func GenericJSON() Fused {
	return Fuse(
		EncoderFunc(func(value any) ([]byte, error) {
			data, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("serde.GenericJSON: failed to serialize data, %w", err)
			}

			return data, nil
		}),
		DecodeFunc(func(data []byte) (any, error) {
			var model any
			if err := json.Unmarshal(data, &model); err != nil {
				return nil, fmt.Errorf("serde.GenericJSON: failed to deserialize data, %w", err)
			}

			return model, nil
		}),
	)
}
