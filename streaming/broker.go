package streaming

import (
	"context"
	"errors"
	"fmt"

	"github.com/get-eventually/go-journal"
)

// OffsetReset is the policy used by a consumer group with no committed
// offset on a topic partition.
type OffsetReset string

// Supported offset reset policies.
const (
	OffsetEarliest OffsetReset = "earliest"
	OffsetLatest   OffsetReset = "latest"
)

// ConsumerParams are the parameters used to subscribe to the commit-log.
type ConsumerParams struct {
	// GroupID identifies the consumer group, which owns the committed offsets.
	GroupID string

	// OffsetReset defaults to OffsetLatest if unspecified.
	OffsetReset OffsetReset

	// Endpoints are the backend-specific connection endpoints,
	// read by the backends' NewBroker constructors.
	Endpoints map[string]string
}

var errNoGroupID = errors.New("missing consumer group id")

// ErrNoClient is returned by a Broker that has no connection to its backend.
var ErrNoClient = errors.New("streaming: broker has no client")

// Validate checks the parameters, and fills in the defaults.
func (p *ConsumerParams) Validate() error {
	if p.GroupID == "" {
		return fmt.Errorf("streaming.ConsumerParams: invalid parameters, %w", errNoGroupID)
	}

	switch p.OffsetReset {
	case "":
		p.OffsetReset = OffsetLatest
	case OffsetEarliest, OffsetLatest:
	default:
		return fmt.Errorf("streaming.ConsumerParams: unsupported offset reset policy %q", p.OffsetReset)
	}

	return nil
}

// TopicSubscription names a topic to consume, and the number of
// consumers to read it with.
type TopicSubscription struct {
	Topic       string
	Parallelism int
}

// Message is a single record read from the commit-log.
type Message struct {
	Topic     string
	Partition int32

	// Key is the message routing key, the stream id of the record.
	Key    string
	Record journal.RawRecord

	// Handle is the backend-specific value used to acknowledge the message.
	Handle any
}

// Consumer reads messages from a subset of the partitions of a topic.
//
// Messages of a single topic partition are received in commit-log order.
type Consumer interface {
	// Receive blocks until a new message is available, or the context is done.
	Receive(ctx context.Context) (Message, error)

	// Ack commits the message offset for the consumer group.
	Ack(ctx context.Context, msg Message) error

	Close() error
}

// Broker is a commit-log backend.
type Broker interface {
	// Subscribe returns the consumers reading the topic for the consumer group,
	// at most as many as the requested parallelism.
	Subscribe(ctx context.Context, params ConsumerParams, sub TopicSubscription) ([]Consumer, error)
}
