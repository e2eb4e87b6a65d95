package serde

// Registry holds named codecs, so that bindings can be described
// by configuration and mapped to code.
type Registry map[string]Codec

// Names of the codecs available in every Registry created with NewRegistry.
const (
	BytesCodecName = "bytes"
	JSONCodecName  = "json"
)

// NewRegistry returns a Registry containing the built-in codecs.
func NewRegistry() Registry {
	return Registry{
		BytesCodecName: Bytes(),
		JSONCodecName:  GenericJSON(),
	}
}

// Register adds a named codec to the registry, replacing any codec
// previously registered with the same name.
func (r Registry) Register(name string, codec Codec) Registry {
	r[name] = codec
	return r
}

// Lookup returns the codec registered with the given name.
func (r Registry) Lookup(name string) (Codec, bool) {
	codec, ok := r[name]
	return codec, ok
}
