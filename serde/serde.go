// Package serde contains the codecs used to decode journal payloads,
// and the Resolver selecting the right codec for a (serializer id, manifest) pair.
package serde

// Encoder serializes a value into a journal payload.
type Encoder interface {
	Encode(value any) ([]byte, error)
}

// EncoderFunc is a functional implementation of the Encoder interface.
type EncoderFunc func(value any) ([]byte, error)

// Encode implements the serde.Encoder interface.
func (fn EncoderFunc) Encode(value any) ([]byte, error) { return fn(value) }

// Decoder deserializes a journal payload into a value.
type Decoder interface {
	Decode(payload []byte) (any, error)
}

// DecodeFunc is a functional implementation of the Decoder interface.
//
// DecodeFunc is also what a Resolver returns for a (serializer id, manifest) pair.
type DecodeFunc func(payload []byte) (any, error)

// Decode implements the serde.Decoder interface.
func (fn DecodeFunc) Decode(payload []byte) (any, error) { return fn(payload) }

// Codec is used to encode values to and decode them from journal payloads.
type Codec interface {
	Encoder
	Decoder
}

// Fused provides a convenient way to fuse together different implementations
// of an Encoder and a Decoder, and use it as a Codec.
type Fused struct {
	Encoder
	Decoder
}

// Fuse combines the given Encoder and Decoder into a Codec.
func Fuse(encoder Encoder, decoder Decoder) Fused {
	return Fused{
		Encoder: encoder,
		Decoder: decoder,
	}
}

// typedEncoder returns an EncoderFunc that only accepts values of type T.
func typedEncoder[T any](name string, encode func(T) ([]byte, error)) EncoderFunc {
	return func(value any) ([]byte, error) {
		t, ok := value.(T)
		if !ok {
			var zeroValue T
			return nil, &UnexpectedTypeError{Codec: name, Expected: zeroValue, Actual: value}
		}

		return encode(t)
	}
}
