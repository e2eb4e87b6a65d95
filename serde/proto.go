package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// NewProtoEncoder returns an encoder function where the input value,
// which must be of type T, gets serialized to the Protobuf wire format.
func NewProtoEncoder[T proto.Message]() EncoderFunc {
	return typedEncoder("Proto", func(t T) ([]byte, error) {
		data, err := proto.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("serde.Proto: failed to serialize data, %w", err)
		}

		return data, nil
	})
}

// NewProtoDecoder returns a decoder function where a Protobuf payload
// is deserialized into a destination data type (T).
//
// A data factory function is required for creating new instances of type `T`.
func NewProtoDecoder[T proto.Message](factory func() T) DecodeFunc {
	return func(data []byte) (any, error) {
		model := factory()

		if err := proto.Unmarshal(data, model); err != nil {
			return nil, fmt.Errorf("serde.Proto: failed to deserialize data, %w", err)
		}

		return model, nil
	}
}

// NewProto returns a new Codec where some data (`T`) gets serialized to
// and deserialized from the Protobuf wire format.
func NewProto[T proto.Message](factory func() T) Fused {
	return Fuse(
		NewProtoEncoder[T](),
		NewProtoDecoder(factory),
	)
}
