package journalpulsar

import (
	"context"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/streaming"
)

// Producer publishes journal records to a Pulsar topic.
//
// Records are keyed by stream id and batched by key, so that partitioned
// topics route every stream to a single partition.
type Producer struct {
	producer pulsar.Producer
}

// NewProducer creates a new Producer for the topic.
func NewProducer(client pulsar.Client, topic string) (*Producer, error) {
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic:              topic,
		BatcherBuilderType: pulsar.KeyBasedBatchBuilder,
	})
	if err != nil {
		return nil, fmt.Errorf("journalpulsar.NewProducer: failed to create producer for %q, %w", topic, err)
	}

	return &Producer{producer: producer}, nil
}

// Publish sends the records to the topic, in order.
func (p *Producer) Publish(ctx context.Context, records ...journal.RawRecord) error {
	for _, record := range records {
		if _, err := p.producer.Send(ctx, &pulsar.ProducerMessage{
			Key:        record.Key.StreamID,
			Payload:    record.Payload,
			Properties: streaming.Properties(record),
		}); err != nil {
			return fmt.Errorf("journalpulsar.Producer: failed to publish record %s, %w", record.Key, err)
		}
	}

	return nil
}

// Close flushes the pending messages and closes the producer.
func (p *Producer) Close() {
	p.producer.Close()
}
