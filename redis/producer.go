package journalredis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/streaming"
)

// Producer appends journal records to the partitions of a topic.
//
// Records are routed to a partition by stream id, so that the records
// of a stream keep their relative order.
type Producer struct {
	Client     redis.UniversalClient
	Partitions int
}

// Publish appends the records to the topic, in a single pipeline.
func (p Producer) Publish(ctx context.Context, topic string, records ...journal.RawRecord) error {
	if p.Client == nil {
		return fmt.Errorf("journalredis.Producer: failed to publish, %w", streaming.ErrNoClient)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("journalredis.Producer: context error, %w", err)
	}

	if len(records) == 0 {
		return nil
	}

	pipe := p.Client.Pipeline()
	defer pipe.Close()

	for _, record := range records {
		values := make(map[string]interface{}, 5)
		for k, v := range streaming.Properties(record) {
			values[k] = v
		}

		values[KeyField] = record.Key.StreamID
		values[PayloadField] = record.Payload

		pipe.XAdd(&redis.XAddArgs{
			Stream: StreamKey(topic, streaming.PartitionOf(record.Key.StreamID, partitions(p.Partitions))),
			Values: values,
		})
	}

	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("journalredis.Producer: failed to publish records to %q, %w", topic, err)
	}

	return nil
}
