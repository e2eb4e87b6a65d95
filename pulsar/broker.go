// Package journalpulsar contains a commit-log backend for the journal
// streaming subscriptions, targeted to Apache Pulsar.
package journalpulsar

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/streaming"
)

// URLEndpoint is the key of the Pulsar service url in streaming.ConsumerParams.Endpoints.
const URLEndpoint = "url"

var _ streaming.Broker = Broker{}

// Broker subscribes to Pulsar topics using Key_Shared subscriptions,
// named after the consumer group id: messages with the same key,
// i.e. the same stream id, are always delivered to the same consumer.
type Broker struct {
	Client pulsar.Client
	Logger logger.Logger
}

// NewBroker creates a new Broker connected to the service url
// found in the consumer parameters endpoints.
//
// The Broker owns the client: use Broker.Close to release it.
func NewBroker(params streaming.ConsumerParams, l logger.Logger) (Broker, error) {
	url := params.Endpoints[URLEndpoint]
	if url == "" {
		return Broker{}, fmt.Errorf("journalpulsar.NewBroker: missing %q endpoint", URLEndpoint)
	}

	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: url})
	if err != nil {
		return Broker{}, fmt.Errorf("journalpulsar.NewBroker: failed to create client, %w", err)
	}

	return Broker{Client: client, Logger: l}, nil
}

// Close closes the underlying client.
func (b Broker) Close() {
	if b.Client != nil {
		b.Client.Close()
	}
}

func initialPosition(reset streaming.OffsetReset) pulsar.SubscriptionInitialPosition {
	if reset == streaming.OffsetEarliest {
		return pulsar.SubscriptionPositionEarliest
	}

	return pulsar.SubscriptionPositionLatest
}

// Subscribe implements the streaming.Broker interface.
//
// The offset reset policy only applies when the subscription is created:
// an existing subscription resumes from its acknowledged position.
func (b Broker) Subscribe(
	ctx context.Context,
	params streaming.ConsumerParams,
	sub streaming.TopicSubscription,
) ([]streaming.Consumer, error) {
	if b.Client == nil {
		return nil, fmt.Errorf("journalpulsar.Broker: failed to subscribe, %w", streaming.ErrNoClient)
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("journalpulsar.Broker: failed to subscribe, %w", err)
	}

	consumers := make([]streaming.Consumer, 0, max(sub.Parallelism, 1))

	for range max(sub.Parallelism, 1) {
		if err := ctx.Err(); err != nil {
			return nil, closeAll(consumers, fmt.Errorf("journalpulsar.Broker: context error, %w", err))
		}

		c, err := b.Client.Subscribe(pulsar.ConsumerOptions{
			Topic:                       sub.Topic,
			SubscriptionName:            params.GroupID,
			Name:                        params.GroupID + "-" + uuid.NewString(),
			Type:                        pulsar.KeyShared,
			SubscriptionInitialPosition: initialPosition(params.OffsetReset),
		})
		if err != nil {
			return nil, closeAll(consumers, fmt.Errorf("journalpulsar.Broker: failed to subscribe to %q, %w", sub.Topic, err))
		}

		consumers = append(consumers, &Consumer{consumer: c, topic: sub.Topic, logger: b.Logger})
	}

	return consumers, nil
}

func closeAll(consumers []streaming.Consumer, cause error) error {
	result := multierror.Append(nil, cause)

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Consumer is a streaming.Consumer reading a Pulsar topic.
type Consumer struct {
	consumer pulsar.Consumer
	topic    string
	logger   logger.Logger
}

// Receive implements the streaming.Consumer interface.
//
// Messages that do not carry a journal record are acknowledged
// and skipped, with a warning.
func (c *Consumer) Receive(ctx context.Context) (streaming.Message, error) {
	for {
		msg, err := c.consumer.Receive(ctx)
		if err != nil {
			return streaming.Message{}, fmt.Errorf("journalpulsar.Consumer: failed to receive message, %w", err)
		}

		record, err := streaming.Record(msg.Key(), msg.Properties(), msg.Payload())
		if errors.Is(err, streaming.ErrMalformedMessage) {
			logger.Warn(c.logger, "Skipping malformed message",
				logger.With("topic", c.topic),
				logger.With("message_id", msg.ID().String()),
				logger.Err(err),
			)

			if err := c.consumer.Ack(msg); err != nil {
				return streaming.Message{}, fmt.Errorf("journalpulsar.Consumer: failed to ack malformed message, %w", err)
			}

			continue
		}

		return streaming.Message{
			Topic:     c.topic,
			Partition: msg.ID().PartitionIdx(),
			Key:       msg.Key(),
			Record:    record,
			Handle:    msg,
		}, nil
	}
}

// Ack implements the streaming.Consumer interface.
func (c *Consumer) Ack(_ context.Context, msg streaming.Message) error {
	pulsarMsg, ok := msg.Handle.(pulsar.Message)
	if !ok {
		return fmt.Errorf("journalpulsar.Consumer: unexpected message handle type %T", msg.Handle)
	}

	if err := c.consumer.Ack(pulsarMsg); err != nil {
		return fmt.Errorf("journalpulsar.Consumer: failed to ack message, %w", err)
	}

	return nil
}

// Close implements the streaming.Consumer interface.
func (c *Consumer) Close() error {
	c.consumer.Close()
	return nil
}
