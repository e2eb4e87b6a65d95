package config

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/serde"
)

// Binding binds the codec registered with the Codec name to a manifest,
// or to all the manifests matching a glob pattern.
type Binding struct {
	Manifest     string `mapstructure:"manifest"`
	SerializerID int32  `mapstructure:"serializer_id"`
	Codec        string `mapstructure:"codec"`
}

// Expectation names a manifest that must be resolvable in strict mode.
type Expectation struct {
	Manifest     string `mapstructure:"manifest"`
	SerializerID int32  `mapstructure:"serializer_id"`
}

// Serialization is the serializer configuration snapshot.
type Serialization struct {
	Strict          bool          `mapstructure:"strict"`
	CacheSize       int           `mapstructure:"cache_size"`
	DisableDefaults bool          `mapstructure:"disable_defaults"`
	Fallback        string        `mapstructure:"fallback"`
	Bindings        []Binding     `mapstructure:"bindings"`
	Expect          []Expectation `mapstructure:"expect"`
}

// LoadSerialization reads the serializer configuration from the subtree
// at the given key. Only the subtree is read: a missing subtree
// results in the default configuration.
func LoadSerialization(v *viper.Viper, key string) (Serialization, error) {
	var s Serialization

	if err := unmarshalKey(v, key, &s); err != nil {
		return Serialization{}, journal.ConfigurationError{
			Err: fmt.Errorf("config.LoadSerialization: failed to decode %q, %w", key, err),
		}
	}

	return s, nil
}

var errUnknownCodec = errors.New("unknown codec")

// Serde maps the snapshot to a serde.Config, looking the configured
// codec names up in the registry.
//
// All the unknown codec names are reported together, as a journal.ConfigurationError.
func (s Serialization) Serde(registry serde.Registry, l logger.Logger) (serde.Config, error) {
	cfg := serde.Config{
		Strict:    s.Strict,
		CacheSize: s.CacheSize,
		Logger:    l,
	}

	if s.DisableDefaults {
		cfg.Defaults = map[int32]serde.Codec{}
	}

	var result *multierror.Error

	lookup := func(manifest, name string) serde.Codec {
		codec, ok := registry.Lookup(name)
		if !ok {
			result = multierror.Append(result, journal.ConfigurationError{
				Manifest: manifest,
				Err:      fmt.Errorf("%w %q", errUnknownCodec, name),
			})
		}

		return codec
	}

	if s.Fallback != "" {
		cfg.Fallback = lookup("", s.Fallback)
	}

	for _, b := range s.Bindings {
		cfg.Bindings = append(cfg.Bindings, serde.BindSerializer(b.SerializerID, b.Manifest, lookup(b.Manifest, b.Codec)))
	}

	for _, e := range s.Expect {
		cfg.Expect = append(cfg.Expect, serde.Expectation{SerializerID: e.SerializerID, Manifest: e.Manifest})
	}

	if err := result.ErrorOrNil(); err != nil {
		if len(result.Errors) == 1 {
			return serde.Config{}, result.Errors[0]
		}

		return serde.Config{}, journal.ConfigurationError{Err: err}
	}

	return cfg, nil
}
