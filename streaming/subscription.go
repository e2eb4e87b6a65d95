package streaming

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/materialize"
	"github.com/get-eventually/go-journal/serde"
)

// Default values used by Config, if unspecified.
const (
	DefaultBatchSize     = 500
	DefaultBatchInterval = time.Second
)

// ErrClosed is returned when committing a Batch of a closed Subscription.
var ErrClosed = errors.New("streaming: subscription is closed")

// CommitPolicy decides when the messages of a Batch are acknowledged.
type CommitPolicy int

const (
	// CommitOnEmit acknowledges the messages of a Batch as soon as
	// it has been handed off to the caller.
	CommitOnEmit CommitPolicy = iota

	// CommitManual leaves the acknowledgement to the caller, through Batch.Commit.
	// Batches where every message was dropped are delivered too, with no Events.
	CommitManual
)

// Config is the configuration of a Subscription.
type Config struct {
	// Serialization is the configuration snapshot every consume loop
	// builds its own serde.Resolver from.
	Serialization serde.Config

	// BatchSize is the maximum number of messages in a Batch.
	// Defaults to DefaultBatchSize if unspecified.
	BatchSize int

	// BatchInterval is the maximum time spent filling a Batch.
	// Defaults to DefaultBatchInterval if unspecified.
	BatchInterval time.Duration

	Commit CommitPolicy

	// Clock is used to measure the batch interval. Defaults to the real clock.
	Clock clock.Clock

	Logger logger.Logger
}

func (cfg Config) batchSize() int {
	if cfg.BatchSize <= 0 {
		return DefaultBatchSize
	}

	return cfg.BatchSize
}

func (cfg Config) batchInterval() time.Duration {
	if cfg.BatchInterval <= 0 {
		return DefaultBatchInterval
	}

	return cfg.BatchInterval
}

// Batch is a micro-batch of events read by a single consumer.
//
// Events of the same stream are in sequence number order, within a Batch
// and across the Batches of the same Subscription.
type Batch struct {
	Topic  string
	Events []journal.Event

	// Dropped is the number of messages that could not be deserialized.
	Dropped int

	subscription *Subscription
	consumer     Consumer
	messages     []Message
	committed    *atomic.Bool
}

// Commit acknowledges all the messages of the Batch.
//
// Commit is a no-op if the Batch has already been committed, as with
// CommitOnEmit. It returns ErrClosed once the Subscription has terminated.
func (b Batch) Commit(ctx context.Context) error {
	if b.subscription == nil {
		return nil
	}

	if b.subscription.closed.Load() {
		return ErrClosed
	}

	if b.committed.Load() {
		return nil
	}

	if err := ack(ctx, b.consumer, b.messages); err != nil {
		return fmt.Errorf("streaming.Batch: failed to commit batch, %w", err)
	}

	b.committed.Store(true)

	return nil
}

func ack(ctx context.Context, consumer Consumer, messages []Message) error {
	for _, msg := range messages {
		if err := consumer.Ack(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}

type topicConsumer struct {
	Consumer
	topic string
}

// Subscription is a running subscription to one or more commit-log topics.
//
// A Subscription is not restartable: once closed, or failed, a new one
// must be created, and it will obey the configured offset reset policy.
type Subscription struct {
	batches   chan Batch
	consumers []Consumer
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	logger    logger.Logger

	err      error
	closeErr error
}

// Subscribe subscribes to the topics, consuming each of them with
// the parallelism in the topics map, and starts one consume loop per consumer.
//
// The serializer configuration is checked before subscribing, so that
// a journal.ConfigurationError is returned before any message is consumed.
func Subscribe(
	ctx context.Context,
	broker Broker,
	params ConsumerParams,
	topics map[string]int,
	cfg Config,
) (*Subscription, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if len(topics) == 0 {
		return nil, errors.New("streaming.Subscribe: no topics to subscribe to")
	}

	if _, err := serde.NewResolver(cfg.Serialization); err != nil {
		return nil, fmt.Errorf("streaming.Subscribe: invalid serializer configuration, %w", err)
	}

	var (
		consumers []Consumer
		loops     []topicConsumer
		names     = slices.Sorted(maps.Keys(topics))
	)

	for _, topic := range names {
		parallelism := max(topics[topic], 1)

		subscribed, err := broker.Subscribe(ctx, params, TopicSubscription{Topic: topic, Parallelism: parallelism})
		if err != nil {
			err = fmt.Errorf("streaming.Subscribe: failed to subscribe to topic %q, %w", topic, err)

			if closeErr := closeAll(consumers); closeErr != nil {
				err = multierror.Append(err, closeErr)
			}

			return nil, err
		}

		for _, consumer := range subscribed {
			loops = append(loops, topicConsumer{Consumer: consumer, topic: topic})
		}

		consumers = append(consumers, subscribed...)
	}

	ctx, cancel := context.WithCancel(ctx)

	s := &Subscription{
		batches:   make(chan Batch),
		consumers: consumers,
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    cfg.Logger,
	}

	group, ctx := errgroup.WithContext(ctx)

	for _, loop := range loops {
		group.Go(func() error {
			return s.consume(ctx, loop.Consumer, loop.topic, cfg)
		})
	}

	logger.Info(cfg.Logger, "Subscription started",
		logger.With("group_id", params.GroupID),
		logger.With("topics", names),
		logger.With("consumers", len(consumers)),
	)

	go s.wait(group)

	return s, nil
}

func (s *Subscription) wait(group *errgroup.Group) {
	err := group.Wait()

	if err != nil && !s.closed.Load() {
		logger.Error(s.logger, "Subscription failed", logger.Err(err))
		s.err = err
	}

	s.closed.Store(true)
	s.closeErr = closeAll(s.consumers)

	close(s.done)
	close(s.batches)
}

func (s *Subscription) consume(ctx context.Context, consumer Consumer, topic string, cfg Config) error {
	materializer, err := materialize.New(cfg.Serialization)
	if err != nil {
		return fmt.Errorf("streaming.Subscription: failed to build materializer, %w", err)
	}

	input := make(chan Message, cfg.batchSize())
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(input)

		for {
			msg, err := consumer.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return fmt.Errorf("streaming.Subscription: failed to receive message from topic %q, %w", topic, err)
			}

			select {
			case input <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	})

	batcher := NewBatcher(input, cfg.batchSize(), cfg.batchInterval(), func(ctx context.Context, messages []Message) error {
		return s.emit(ctx, consumer, topic, materializer, messages, cfg.Commit)
	})

	if cfg.Clock != nil {
		batcher.WithClock(cfg.Clock)
	}

	group.Go(func() error { return batcher.Run(ctx) })

	return group.Wait()
}

func (s *Subscription) emit(
	ctx context.Context,
	consumer Consumer,
	topic string,
	materializer materialize.Materializer,
	messages []Message,
	policy CommitPolicy,
) error {
	batch := Batch{
		Topic:        topic,
		Events:       make([]journal.Event, 0, len(messages)),
		subscription: s,
		consumer:     consumer,
		messages:     messages,
		committed:    new(atomic.Bool),
	}

	for _, msg := range messages {
		evt, ok, err := materializer.Stream(msg.Record)
		if err != nil {
			return fmt.Errorf("streaming.Subscription: failed to materialize message from topic %q, %w", topic, err)
		}

		if !ok {
			batch.Dropped++
			continue
		}

		batch.Events = append(batch.Events, evt)
	}

	// Batches made only of dropped messages are not delivered when commits
	// happen on emit. Under CommitManual the caller owns every commit,
	// so these batches are delivered with no Events.
	if len(batch.Events) == 0 && policy == CommitOnEmit {
		if err := ack(ctx, consumer, messages); err != nil {
			return fmt.Errorf("streaming.Subscription: failed to ack dropped messages, %w", err)
		}

		return nil
	}

	select {
	case s.batches <- batch:
	case <-ctx.Done():
		return ctx.Err()
	}

	if policy == CommitOnEmit {
		if err := batch.Commit(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Batches returns the channel the micro-batches are delivered on.
// The channel is closed when the Subscription terminates.
func (s *Subscription) Batches() <-chan Batch { return s.batches }

// Done returns a channel closed when the Subscription has terminated.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the error that terminated the Subscription, or nil
// if the Subscription is still running or has been closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close stops all the consume loops and closes the consumers.
// Calling Close more than once is a no-op.
func (s *Subscription) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		<-s.done

		err = s.closeErr

		logger.Info(s.logger, "Subscription closed")
	})

	return err
}

func closeAll(consumers []Consumer) error {
	var result *multierror.Error

	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
