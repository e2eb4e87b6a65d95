// Package config reads the journal configuration snapshots
// from a viper configuration subtree.
//
// Snapshots are plain values: once loaded they are never modified,
// and every worker builds its own runtime state out of them.
package config

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/get-eventually/go-journal/streaming"
)

var decodeHooks = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	OffsetResetHookFunc(),
	CommitPolicyHookFunc(),
))

func strictDecoding(c *mapstructure.DecoderConfig) {
	c.ErrorUnused = true
	c.WeaklyTypedInput = true
}

func unmarshalKey(v *viper.Viper, key string, out any) error {
	if !v.IsSet(key) {
		return nil
	}

	return v.UnmarshalKey(key, out, decodeHooks, strictDecoding)
}

// OffsetResetHookFunc decodes and validates a streaming.OffsetReset policy.
func OffsetResetHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(streaming.OffsetReset("")) {
			return data, nil
		}

		switch reset := streaming.OffsetReset(reflect.ValueOf(data).String()); reset {
		case "", streaming.OffsetEarliest, streaming.OffsetLatest:
			return reset, nil
		default:
			return nil, fmt.Errorf("config: unsupported offset reset policy %q", reset)
		}
	}
}

// CommitPolicyHookFunc decodes a streaming.CommitPolicy from its name,
// either "emit" or "manual".
func CommitPolicyHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(streaming.CommitOnEmit) {
			return data, nil
		}

		switch name := reflect.ValueOf(data).String(); name {
		case "", "emit":
			return streaming.CommitOnEmit, nil
		case "manual":
			return streaming.CommitManual, nil
		default:
			return nil, fmt.Errorf("config: unsupported commit policy %q", name)
		}
	}
}
