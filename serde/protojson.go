package serde

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// NewProtoJSONEncoder returns an encoder function where the input value,
// which must be of type T, gets serialized to Protobuf JSON.
func NewProtoJSONEncoder[T proto.Message]() EncoderFunc {
	return typedEncoder("ProtoJSON", func(t T) ([]byte, error) {
		data, err := protojson.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("serde.ProtoJSON: failed to serialize data, %w", err)
		}

		return data, nil
	})
}

// NewProtoJSONDecoder returns a decoder function where a Protobuf JSON payload
// is deserialized into a destination model type (T).
//
// A data factory function is required for creating new instances of type `T`.
func NewProtoJSONDecoder[T proto.Message](factory func() T) DecodeFunc {
	return func(data []byte) (any, error) {
		model := factory()

		if err := protojson.Unmarshal(data, model); err != nil {
			return nil, fmt.Errorf("serde.ProtoJSON: failed to deserialize data, %w", err)
		}

		return model, nil
	}
}

// NewProtoJSON returns a new Codec where some data (`T`) gets serialized to
// and deserialized from Protobuf JSON.
func NewProtoJSON[T proto.Message](factory func() T) Fused {
	return Fuse(
		NewProtoJSONEncoder[T](),
		NewProtoJSONDecoder(factory),
	)
}
