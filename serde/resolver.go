package serde

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
)

// DefaultCacheSize is the number of resolutions memoized by a Resolver,
// if not specified.
const DefaultCacheSize = 1024

// Expectation names a (serializer id, manifest) pair that must be resolvable
// when the Resolver is in strict mode.
type Expectation struct {
	SerializerID int32
	Manifest     string
}

// Config is the configuration snapshot a Resolver is built from.
//
// A Config must not be modified after it has been used to build a Resolver:
// workers build their own Resolver out of the same Config.
type Config struct {
	// Bindings are the caller-supplied codecs, checked before the defaults.
	Bindings []Binding

	// Defaults are the codecs used when no binding matches, keyed by serializer id.
	// A nil map uses DefaultCodecs(); use an empty map to disable the defaults.
	Defaults map[int32]Codec

	// Fallback is used when neither a binding nor a default matches.
	Fallback Codec

	// Strict escalates every resolution or decoding failure to a fatal error.
	Strict bool

	// Expect lists the pairs that must be resolvable in strict mode,
	// checked when the Resolver is built.
	Expect []Expectation

	// CacheSize is the number of memoized resolutions.
	// Defaults to DefaultCacheSize if unspecified.
	CacheSize int

	Logger logger.Logger
}

type cacheKey struct {
	serializerID int32
	manifest     string
}

type resolution struct {
	decode DecodeFunc
	err    error
}

// Resolver maps a (serializer id, manifest) pair to the function
// decoding the payloads written with it.
//
// Caller-supplied bindings are checked first, in declaration order
// (exact manifests before glob patterns), followed by the default codecs.
// Resolutions are memoized: a Resolver is safe for concurrent use.
type Resolver struct {
	exact    map[string][]Binding
	globs    []Binding
	defaults map[int32]Codec
	fallback Codec
	strict   bool
	cache    *lru.Cache
	logger   logger.Logger
}

// NewResolver builds a new Resolver from the provided configuration.
//
// Malformed bindings are reported as journal.ConfigurationError in strict mode,
// and skipped with a warning otherwise. In strict mode, every Expectation
// must also be resolvable.
func NewResolver(cfg Config) (*Resolver, error) {
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("serde.NewResolver: failed to create resolution cache, %w", err)
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = DefaultCodecs()
	}

	r := &Resolver{
		exact:    make(map[string][]Binding),
		defaults: maps.Clone(defaults),
		fallback: cfg.Fallback,
		strict:   cfg.Strict,
		cache:    cache,
		logger:   cfg.Logger,
	}

	var result *multierror.Error

	for _, binding := range cfg.Bindings {
		if err := binding.validate(); err != nil {
			if cfg.Strict {
				result = multierror.Append(result, journal.ConfigurationError{Manifest: binding.Pattern, Err: err})
				continue
			}

			logger.Warn(r.logger, "Skipping malformed serializer binding",
				logger.With("manifest", binding.Pattern),
				logger.Err(err),
			)

			continue
		}

		if binding.isGlob() {
			r.globs = append(r.globs, binding)
		} else {
			r.exact[binding.Pattern] = append(r.exact[binding.Pattern], binding)
		}
	}

	if cfg.Strict {
		for _, expected := range cfg.Expect {
			if _, err := r.Resolve(expected.SerializerID, expected.Manifest); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		if len(result.Errors) == 1 {
			return nil, result.Errors[0]
		}

		return nil, journal.ConfigurationError{Err: err}
	}

	return r, nil
}

// Strict returns true if the Resolver has been built in strict mode.
func (r *Resolver) Strict() bool { return r.strict }

// Resolve returns the function decoding payloads written with the given
// serializer id and manifest.
//
// If no codec is bound to the pair, Resolve returns a journal.DeserializationError,
// or a journal.ConfigurationError in strict mode. Both wrap journal.ErrNoBinding.
//
// Decoding failures are returned by the DecodeFunc as journal.DeserializationError.
func (r *Resolver) Resolve(serializerID int32, manifest string) (DecodeFunc, error) {
	key := cacheKey{serializerID: serializerID, manifest: manifest}

	if v, ok := r.cache.Get(key); ok {
		res := v.(resolution) //nolint:forcetypeassert // Only resolutions are added to the cache.
		return res.decode, res.err
	}

	res := r.resolve(serializerID, manifest)
	r.cache.Add(key, res)

	return res.decode, res.err
}

func (r *Resolver) resolve(serializerID int32, manifest string) resolution {
	codec, source := r.lookup(serializerID, manifest)
	if codec == nil {
		return resolution{err: r.noBinding(serializerID, manifest)}
	}

	logger.Debug(r.logger, "Resolved codec for manifest",
		logger.With("manifest", manifest),
		logger.With("serializer_id", serializerID),
		logger.With("source", source),
	)

	return resolution{
		decode: func(payload []byte) (any, error) {
			value, err := codec.Decode(payload)
			if err != nil {
				return nil, journal.DeserializationError{
					SerializerID: serializerID,
					Manifest:     manifest,
					Err:          err,
				}
			}

			return value, nil
		},
	}
}

func (r *Resolver) lookup(serializerID int32, manifest string) (Codec, string) {
	for _, binding := range r.exact[manifest] {
		if binding.matches(serializerID, manifest) {
			return binding.Codec, "binding"
		}
	}

	for _, binding := range r.globs {
		if binding.matches(serializerID, manifest) {
			return binding.Codec, "binding"
		}
	}

	if codec, ok := r.defaults[serializerID]; ok && codec != nil {
		return codec, "default"
	}

	if r.fallback != nil {
		return r.fallback, "fallback"
	}

	return nil, ""
}

func (r *Resolver) noBinding(serializerID int32, manifest string) error {
	if r.strict {
		return journal.ConfigurationError{
			Manifest: manifest,
			Err:      fmt.Errorf("serializer %d, %w", serializerID, journal.ErrNoBinding),
		}
	}

	return journal.DeserializationError{
		SerializerID: serializerID,
		Manifest:     manifest,
		Err:          journal.ErrNoBinding,
	}
}

// Manifests returns the exact manifests with a binding, sorted.
func (r *Resolver) Manifests() []string {
	return slices.Sorted(maps.Keys(r.exact))
}
