package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/serde"
	"github.com/get-eventually/go-journal/streaming"
)

// Streaming is the streaming subscription configuration snapshot.
//
// Viper keys are case-insensitive: topic names and endpoint keys
// are read lowercased.
type Streaming struct {
	GroupID       string                 `mapstructure:"group_id"`
	OffsetReset   streaming.OffsetReset  `mapstructure:"offset_reset"`
	Endpoints     map[string]string      `mapstructure:"endpoints"`
	Topics        map[string]int         `mapstructure:"topics"`
	BatchSize     int                    `mapstructure:"batch_size"`
	BatchInterval time.Duration          `mapstructure:"batch_interval"`
	Commit        streaming.CommitPolicy `mapstructure:"commit"`
}

// LoadStreaming reads the streaming configuration from the subtree
// at the given key.
func LoadStreaming(v *viper.Viper, key string) (Streaming, error) {
	var s Streaming

	if err := unmarshalKey(v, key, &s); err != nil {
		return Streaming{}, journal.ConfigurationError{
			Err: fmt.Errorf("config.LoadStreaming: failed to decode %q, %w", key, err),
		}
	}

	return s, nil
}

// ConsumerParams returns the parameters used to subscribe to the commit-log.
func (s Streaming) ConsumerParams() streaming.ConsumerParams {
	return streaming.ConsumerParams{
		GroupID:     s.GroupID,
		OffsetReset: s.OffsetReset,
		Endpoints:   s.Endpoints,
	}
}

// Subscription returns the configuration of a streaming.Subscription,
// decoding records with the provided serializer configuration.
func (s Streaming) Subscription(serialization serde.Config, l logger.Logger) streaming.Config {
	return streaming.Config{
		Serialization: serialization,
		BatchSize:     s.BatchSize,
		BatchInterval: s.BatchInterval,
		Commit:        s.Commit,
		Logger:        l,
	}
}
