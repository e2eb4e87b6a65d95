package serde_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/serde"
)

const customSerializerID int32 = 42

func userCodec() serde.Codec {
	return serde.NewJSON(func() *userCreated { return new(userCreated) })
}

// countingCodec counts how many times Decode has been called.
type countingCodec struct {
	serde.Codec
	decodes *int
}

func (c countingCodec) Decode(payload []byte) (any, error) {
	*c.decodes++
	return c.Codec.Decode(payload)
}

func TestResolver(t *testing.T) {
	t.Run("custom bindings are preferred over default codecs", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Bindings: []serde.Binding{serde.Bind("user.Created", userCodec())},
			Logger:   logger.NewTest(t),
		})
		require.NoError(t, err)

		decode, err := resolver.Resolve(serde.SerializerIDJSON, "user.Created")
		require.NoError(t, err)

		value, err := decode([]byte(`{"id":"u-1","email":"a@b.c","age":3}`))
		require.NoError(t, err)
		assert.Equal(t, &userCreated{ID: "u-1", Email: "a@b.c", Age: 3}, value)
	})

	t.Run("default codecs are used when no binding matches", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{})
		require.NoError(t, err)

		decode, err := resolver.Resolve(serde.SerializerIDJSON, "something.Else")
		require.NoError(t, err)

		value, err := decode([]byte(`{"a":1}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": float64(1)}, value)

		decode, err = resolver.Resolve(serde.SerializerIDBytes, "")
		require.NoError(t, err)

		value, err = decode([]byte("raw"))
		require.NoError(t, err)
		assert.Equal(t, []byte("raw"), value)
	})

	t.Run("exact bindings win over glob patterns", func(t *testing.T) {
		exact := serde.Fuse(serde.EncoderFunc(nil), serde.DecodeFunc(func([]byte) (any, error) { return "exact", nil }))
		glob := serde.Fuse(serde.EncoderFunc(nil), serde.DecodeFunc(func([]byte) (any, error) { return "glob", nil }))

		resolver, err := serde.NewResolver(serde.Config{
			Bindings: []serde.Binding{
				serde.Bind("user.*", glob),
				serde.Bind("user.Created", exact),
			},
		})
		require.NoError(t, err)

		decode, err := resolver.Resolve(customSerializerID, "user.Created")
		require.NoError(t, err)

		value, err := decode(nil)
		require.NoError(t, err)
		assert.Equal(t, "exact", value)

		decode, err = resolver.Resolve(customSerializerID, "user.Deleted")
		require.NoError(t, err)

		value, err = decode(nil)
		require.NoError(t, err)
		assert.Equal(t, "glob", value)
	})

	t.Run("bindings scoped to a serializer id only match that serializer", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Bindings: []serde.Binding{serde.BindSerializer(customSerializerID, "user.Created", userCodec())},
			Defaults: map[int32]serde.Codec{},
		})
		require.NoError(t, err)

		_, err = resolver.Resolve(customSerializerID, "user.Created")
		assert.NoError(t, err)

		_, err = resolver.Resolve(customSerializerID+1, "user.Created")
		assert.ErrorIs(t, err, journal.ErrNoBinding)
	})

	t.Run("unbound manifests return a deserialization error in non-strict mode", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{Defaults: map[int32]serde.Codec{}})
		require.NoError(t, err)

		decode, err := resolver.Resolve(customSerializerID, "X")
		assert.Nil(t, decode)

		var deserializationErr journal.DeserializationError
		require.ErrorAs(t, err, &deserializationErr)
		assert.Equal(t, "X", deserializationErr.Manifest)
		assert.ErrorIs(t, err, journal.ErrNoBinding)
	})

	t.Run("fallback codec is used for unknown serializer ids", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Defaults: map[int32]serde.Codec{},
			Fallback: serde.Bytes(),
		})
		require.NoError(t, err)

		_, err = resolver.Resolve(customSerializerID, "X")
		assert.NoError(t, err)
	})

	t.Run("resolutions are memoized and idempotent", func(t *testing.T) {
		decodes := 0
		codec := countingCodec{Codec: userCodec(), decodes: &decodes}

		resolver, err := serde.NewResolver(serde.Config{
			Bindings:  []serde.Binding{serde.Bind("user.Created", codec)},
			CacheSize: 2,
		})
		require.NoError(t, err)

		payload := []byte(`{"id":"u-1","email":"a@b.c","age":3}`)

		first, err := resolver.Resolve(customSerializerID, "user.Created")
		require.NoError(t, err)

		second, err := resolver.Resolve(customSerializerID, "user.Created")
		require.NoError(t, err)

		firstValue, err := first(payload)
		require.NoError(t, err)

		secondValue, err := second(payload)
		require.NoError(t, err)

		assert.Equal(t, firstValue, secondValue)
		assert.Equal(t, 2, decodes)
	})

	t.Run("decoding failures are reported as deserialization errors", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Bindings: []serde.Binding{serde.Bind("user.Created", userCodec())},
		})
		require.NoError(t, err)

		decode, err := resolver.Resolve(customSerializerID, "user.Created")
		require.NoError(t, err)

		_, err = decode([]byte("not json"))

		var deserializationErr journal.DeserializationError
		require.ErrorAs(t, err, &deserializationErr)
		assert.Equal(t, customSerializerID, deserializationErr.SerializerID)
		assert.Equal(t, "user.Created", deserializationErr.Manifest)
	})
}

func TestResolver_RoundTrip(t *testing.T) {
	resolver, err := serde.NewResolver(serde.Config{
		Bindings: []serde.Binding{serde.Bind("user.Created", userCodec())},
	})
	require.NoError(t, err)

	testCases := []struct {
		name         string
		serializerID int32
		manifest     string
		codec        serde.Codec
		value        any
	}{
		{
			name:         "custom bound codec",
			serializerID: customSerializerID,
			manifest:     "user.Created",
			codec:        userCodec(),
			value:        &userCreated{ID: "u-2", Email: "x@y.z", Age: 51},
		},
		{
			name:         "default json codec",
			serializerID: serde.SerializerIDJSON,
			manifest:     "",
			codec:        serde.GenericJSON(),
			value:        map[string]any{"hello": "world"},
		},
		{
			name:         "default bytes codec",
			serializerID: serde.SerializerIDBytes,
			manifest:     "blob",
			codec:        serde.Bytes(),
			value:        []byte{0x00, 0x01, 0x02},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := tc.codec.Encode(tc.value)
			require.NoError(t, err)

			decode, err := resolver.Resolve(tc.serializerID, tc.manifest)
			require.NoError(t, err)

			decoded, err := decode(payload)
			require.NoError(t, err)
			assert.Equal(t, tc.value, decoded)
		})
	}
}

func TestResolver_StrictMode(t *testing.T) {
	t.Run("unbound manifest with no default fails with a configuration error", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Strict:   true,
			Defaults: map[int32]serde.Codec{},
		})
		require.NoError(t, err)

		_, err = resolver.Resolve(customSerializerID, "X")

		var configErr journal.ConfigurationError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "X", configErr.Manifest)
		assert.ErrorIs(t, err, journal.ErrNoBinding)
	})

	t.Run("expected manifests are checked when the resolver is built", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Strict:   true,
			Defaults: map[int32]serde.Codec{},
			Expect:   []serde.Expectation{{SerializerID: customSerializerID, Manifest: "X"}},
		})
		assert.Nil(t, resolver)

		var configErr journal.ConfigurationError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "X", configErr.Manifest)
	})

	t.Run("malformed bindings fail the construction", func(t *testing.T) {
		_, err := serde.NewResolver(serde.Config{
			Strict: true,
			Bindings: []serde.Binding{
				serde.Bind("", userCodec()),
				serde.Bind("user.[", userCodec()),
			},
		})

		var configErr journal.ConfigurationError
		assert.ErrorAs(t, err, &configErr)
	})

	t.Run("malformed bindings are skipped in non-strict mode", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Bindings: []serde.Binding{
				serde.Bind("user.Created", nil),
				serde.Bind("user.Updated", userCodec()),
			},
			Logger: logger.NewTest(t),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"user.Updated"}, resolver.Manifests())
	})

	t.Run("a valid configuration builds", func(t *testing.T) {
		resolver, err := serde.NewResolver(serde.Config{
			Strict:   true,
			Bindings: []serde.Binding{serde.Bind("user.Created", userCodec())},
			Expect:   []serde.Expectation{{SerializerID: customSerializerID, Manifest: "user.Created"}},
		})
		require.NoError(t, err)
		assert.True(t, resolver.Strict())
	})
}

func TestRegistry(t *testing.T) {
	registry := serde.NewRegistry().Register("user", userCodec())

	_, ok := registry.Lookup(serde.JSONCodecName)
	assert.True(t, ok)

	_, ok = registry.Lookup("user")
	assert.True(t, ok)

	_, ok = registry.Lookup("unknown")
	assert.False(t, ok)
}
