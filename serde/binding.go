package serde

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Serializer ids with a built-in default codec.
const (
	// SerializerIDBytes marks payloads stored as opaque byte arrays.
	SerializerIDBytes int32 = 4

	// SerializerIDJSON marks payloads stored as JSON documents.
	SerializerIDJSON int32 = 5
)

// DefaultCodecs returns the built-in codecs, keyed by serializer id.
func DefaultCodecs() map[int32]Codec {
	return map[int32]Codec{
		SerializerIDBytes: Bytes(),
		SerializerIDJSON:  GenericJSON(),
	}
}

// AnySerializer can be used in a Binding to match all serializer ids.
const AnySerializer int32 = 0

// Binding binds a Codec to the manifests matching Pattern.
//
// Pattern is either an exact manifest or a glob pattern, using the syntax
// of path.Match (e.g. "com.example.user.*").
type Binding struct {
	Pattern string

	// SerializerID restricts the binding to records written with a specific
	// serializer id. AnySerializer matches every serializer id.
	SerializerID int32

	Codec Codec
}

// Bind returns a Binding of the codec to the manifests matching the pattern,
// regardless of the serializer id.
func Bind(pattern string, codec Codec) Binding {
	return Binding{Pattern: pattern, SerializerID: AnySerializer, Codec: codec}
}

// BindSerializer returns a Binding of the codec to the manifests matching
// the pattern, only for records written with the given serializer id.
func BindSerializer(serializerID int32, pattern string, codec Codec) Binding {
	return Binding{Pattern: pattern, SerializerID: serializerID, Codec: codec}
}

func (b Binding) isGlob() bool {
	return strings.ContainsAny(b.Pattern, `*?[\`)
}

func (b Binding) validate() error {
	if b.Pattern == "" {
		return errors.New("empty manifest pattern")
	}

	if b.Codec == nil {
		return errors.New("no codec specified")
	}

	if b.SerializerID < 0 {
		return fmt.Errorf("negative serializer id %d", b.SerializerID)
	}

	if _, err := path.Match(b.Pattern, ""); err != nil {
		return fmt.Errorf("invalid manifest pattern, %w", err)
	}

	return nil
}

func (b Binding) matches(serializerID int32, manifest string) bool {
	if b.SerializerID != AnySerializer && b.SerializerID != serializerID {
		return false
	}

	if !b.isGlob() {
		return b.Pattern == manifest
	}

	ok, _ := path.Match(b.Pattern, manifest)

	return ok
}
