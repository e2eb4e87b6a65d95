// Package journalredis contains a commit-log backend for the journal
// streaming subscriptions, built on Redis Streams and consumer groups.
//
// A topic is split in a fixed number of partitions, each one stored
// in its own Redis Stream at key "<topic>:<partition>".
package journalredis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis"

	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/streaming"
)

const (
	// DefaultPartitions is the number of partitions of a topic,
	// unless a different number is configured.
	DefaultPartitions = 4

	// DefaultBlock is the maximum amount of time a single read
	// waits for new messages before checking the context again.
	DefaultBlock = 100 * time.Millisecond

	// KeyField is the stream entry field holding the message key.
	KeyField = "key"

	// PayloadField is the stream entry field holding the record payload.
	PayloadField = "payload"

	// AddrEndpoint is the key of the comma-separated Redis addresses
	// in streaming.ConsumerParams.Endpoints.
	AddrEndpoint = "addr"

	// PasswordEndpoint is the key of the optional Redis password
	// in streaming.ConsumerParams.Endpoints.
	PasswordEndpoint = "password"
)

// StreamKey returns the key of the Redis Stream holding
// the specified topic partition.
func StreamKey(topic string, partition int32) string {
	return topic + ":" + strconv.Itoa(int(partition))
}

func partitions(n int) int {
	if n <= 0 {
		return DefaultPartitions
	}

	return n
}

var _ streaming.Broker = Broker{}

// Broker subscribes to topics using Redis consumer groups.
//
// Partitions are statically assigned to the consumers of a single
// subscription, so that all messages of a key are read by one consumer.
type Broker struct {
	Client     redis.UniversalClient
	Partitions int
	Block      time.Duration
	Logger     logger.Logger
}

// NewBroker creates a new Broker connected to the addresses found
// in the consumer parameters endpoints.
//
// The Broker owns the client: use Broker.Close to release it.
func NewBroker(params streaming.ConsumerParams, partitions int, l logger.Logger) (Broker, error) {
	addr := params.Endpoints[AddrEndpoint]
	if addr == "" {
		return Broker{}, fmt.Errorf("journalredis.NewBroker: missing %q endpoint", AddrEndpoint)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(addr, ","),
		Password: params.Endpoints[PasswordEndpoint],
	})

	return Broker{Client: client, Partitions: partitions, Logger: l}, nil
}

// Close closes the underlying client.
func (b Broker) Close() error {
	if b.Client == nil {
		return nil
	}

	if err := b.Client.Close(); err != nil {
		return fmt.Errorf("journalredis.Broker: failed to close client, %w", err)
	}

	return nil
}

func groupStart(reset streaming.OffsetReset) string {
	if reset == streaming.OffsetEarliest {
		return "0"
	}

	return "$"
}

// Subscribe implements the streaming.Broker interface.
//
// The offset reset policy only applies when the consumer group
// does not exist yet on a partition.
func (b Broker) Subscribe(
	ctx context.Context,
	params streaming.ConsumerParams,
	sub streaming.TopicSubscription,
) ([]streaming.Consumer, error) {
	if b.Client == nil {
		return nil, fmt.Errorf("journalredis.Broker: failed to subscribe, %w", streaming.ErrNoClient)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("journalredis.Broker: failed to subscribe, %w", err)
	}

	total := partitions(b.Partitions)
	n := min(max(sub.Parallelism, 1), total)

	consumers := make([]*Consumer, n)
	for i := range consumers {
		consumers[i] = &Consumer{
			client:     b.Client,
			topic:      sub.Topic,
			group:      params.GroupID,
			name:       params.GroupID + "-" + sub.Topic + "-" + strconv.Itoa(i),
			block:      b.Block,
			logger:     b.Logger,
			partitions: make(map[string]int32),
			pending:    true,
		}
	}

	for p := range total {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("journalredis.Broker: context error, %w", err)
		}

		key := StreamKey(sub.Topic, int32(p))

		err := b.Client.XGroupCreateMkStream(key, params.GroupID, groupStart(params.OffsetReset)).Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("journalredis.Broker: failed to create consumer group on %q, %w", key, err)
		}

		c := consumers[p%n]
		c.streams = append(c.streams, key)
		c.partitions[key] = int32(p)
	}

	result := make([]streaming.Consumer, 0, n)
	for _, c := range consumers {
		result = append(result, c)
	}

	return result, nil
}
