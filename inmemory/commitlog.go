package inmemory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/streaming"
)

// DefaultTopicPartitions is the number of partitions of a CommitLog topic,
// if not specified.
const DefaultTopicPartitions = 4

var errConsumerClosed = errors.New("inmemory.Consumer: consumer is closed")

// CommitLog is a thread-safe, in-memory partitioned commit-log.
//
// It implements the streaming.Broker interface. Records are routed to
// a topic partition by hashing their stream id.
type CommitLog struct {
	mx         sync.Mutex
	partitions int
	topics     map[string][][]journal.RawRecord
	offsets    map[groupPartition]int
	notify     chan struct{}
}

type groupPartition struct {
	group     string
	topic     string
	partition int32
}

// NewCommitLog creates a new CommitLog, whose topics have the given
// number of partitions.
func NewCommitLog(partitions int) *CommitLog {
	if partitions <= 0 {
		partitions = DefaultTopicPartitions
	}

	return &CommitLog{
		partitions: partitions,
		topics:     make(map[string][][]journal.RawRecord),
		offsets:    make(map[groupPartition]int),
		notify:     make(chan struct{}),
	}
}

// lock must be held.
func (cl *CommitLog) topic(name string) [][]journal.RawRecord {
	partitions, ok := cl.topics[name]
	if !ok {
		partitions = make([][]journal.RawRecord, cl.partitions)
		cl.topics[name] = partitions
	}

	return partitions
}

// Publish appends the records to the topic, routing each of them
// to the partition of its stream id.
func (cl *CommitLog) Publish(ctx context.Context, topic string, records ...journal.RawRecord) error {
	if err := contextErr(ctx); err != nil {
		return err
	}

	cl.mx.Lock()
	defer cl.mx.Unlock()

	partitions := cl.topic(topic)

	for _, record := range records {
		record.Payload = bytes.Clone(record.Payload)
		partition := streaming.PartitionOf(record.Key.StreamID, cl.partitions)
		partitions[partition] = append(partitions[partition], record)
	}

	close(cl.notify)
	cl.notify = make(chan struct{})

	return nil
}

// Committed returns the offset committed by the consumer group
// on the topic partition.
func (cl *CommitLog) Committed(groupID, topic string, partition int32) int {
	cl.mx.Lock()
	defer cl.mx.Unlock()

	return cl.offsets[groupPartition{group: groupID, topic: topic, partition: partition}]
}

// Subscribe returns min(parallelism, partitions) consumers, each reading
// a disjoint subset of the topic partitions.
func (cl *CommitLog) Subscribe(
	ctx context.Context,
	params streaming.ConsumerParams,
	sub streaming.TopicSubscription,
) ([]streaming.Consumer, error) {
	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("inmemory.CommitLog: failed to subscribe, %w", err)
	}

	cl.mx.Lock()
	defer cl.mx.Unlock()

	partitions := cl.topic(sub.Topic)
	n := min(max(sub.Parallelism, 1), cl.partitions)
	consumers := make([]*Consumer, n)

	for i := range consumers {
		consumers[i] = &Consumer{log: cl, group: params.GroupID, topic: sub.Topic, positions: make(map[int32]int)}
	}

	for p := range partitions {
		partition := int32(p) //nolint:gosec // The number of partitions is small.
		key := groupPartition{group: params.GroupID, topic: sub.Topic, partition: partition}

		offset, ok := cl.offsets[key]
		if !ok && params.OffsetReset == streaming.OffsetLatest {
			offset = len(partitions[p])
			cl.offsets[key] = offset
		}

		c := consumers[p%n]
		c.partitions = append(c.partitions, partition)
		c.positions[partition] = offset
	}

	result := make([]streaming.Consumer, 0, n)
	for _, c := range consumers {
		result = append(result, c)
	}

	return result, nil
}

// Consumer reads a subset of the partitions of a CommitLog topic.
type Consumer struct {
	log        *CommitLog
	group      string
	topic      string
	partitions []int32
	positions  map[int32]int
	next       int
	closed     bool
}

// Receive returns the next message of the consumer partitions,
// blocking until one is published or the context is done.
func (c *Consumer) Receive(ctx context.Context) (streaming.Message, error) {
	for {
		c.log.mx.Lock()

		if c.closed {
			c.log.mx.Unlock()
			return streaming.Message{}, errConsumerClosed
		}

		if msg, ok := c.poll(); ok {
			c.log.mx.Unlock()
			return msg, nil
		}

		notify := c.log.notify
		c.log.mx.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return streaming.Message{}, contextErr(ctx)
		}
	}
}

// poll visits the partitions round-robin. Lock must be held.
func (c *Consumer) poll() (streaming.Message, bool) {
	partitions := c.log.topics[c.topic]

	for range c.partitions {
		partition := c.partitions[c.next]
		c.next = (c.next + 1) % len(c.partitions)

		position := c.positions[partition]
		if position >= len(partitions[partition]) {
			continue
		}

		record := partitions[partition][position]
		c.positions[partition] = position + 1
		record.Payload = bytes.Clone(record.Payload)

		return streaming.Message{
			Topic:     c.topic,
			Partition: partition,
			Key:       record.Key.StreamID,
			Record:    record,
			Handle:    position,
		}, true
	}

	return streaming.Message{}, false
}

// Ack commits the offset following the message, for the consumer group.
func (c *Consumer) Ack(ctx context.Context, msg streaming.Message) error {
	if err := contextErr(ctx); err != nil {
		return err
	}

	position, ok := msg.Handle.(int)
	if !ok {
		return fmt.Errorf("inmemory.Consumer: unexpected message handle type %T", msg.Handle)
	}

	c.log.mx.Lock()
	defer c.log.mx.Unlock()

	key := groupPartition{group: c.group, topic: msg.Topic, partition: msg.Partition}
	c.log.offsets[key] = max(c.log.offsets[key], position+1)

	return nil
}

// Close closes the consumer. Calling Close more than once is a no-op.
func (c *Consumer) Close() error {
	c.log.mx.Lock()
	defer c.log.mx.Unlock()

	c.closed = true

	return nil
}
