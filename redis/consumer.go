package journalredis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis"

	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/streaming"
)

// ErrConsumerClosed is returned by Consumer.Receive after Close has been called.
var ErrConsumerClosed = errors.New("journalredis: consumer closed")

type handle struct {
	stream string
	id     string
}

// Consumer is a streaming.Consumer reading a set of topic partitions
// as a member of a Redis consumer group.
//
// Consumer names are stable across restarts: entries delivered but never
// acknowledged are read again before any new entry.
type Consumer struct {
	client     redis.UniversalClient
	topic      string
	group      string
	name       string
	block      time.Duration
	logger     logger.Logger
	streams    []string
	partitions map[string]int32

	pending  bool
	buffered []streaming.Message
	closed   atomic.Bool
}

// Receive implements the streaming.Consumer interface.
func (c *Consumer) Receive(ctx context.Context) (streaming.Message, error) {
	for len(c.buffered) == 0 {
		if c.closed.Load() {
			return streaming.Message{}, ErrConsumerClosed
		}

		if err := ctx.Err(); err != nil {
			return streaming.Message{}, fmt.Errorf("journalredis.Consumer: context error, %w", err)
		}

		if err := c.read(); err != nil {
			return streaming.Message{}, err
		}
	}

	msg := c.buffered[0]
	c.buffered = c.buffered[1:]

	return msg, nil
}

func (c *Consumer) read() error {
	id, count, block := ">", int64(100), c.block
	if block <= 0 {
		block = DefaultBlock
	}

	if c.pending {
		// Entries delivered to this consumer and never acknowledged
		// are read once, without blocking.
		id, count, block = "0", 0, -1
		c.pending = false
	}

	streams := make([]string, 0, 2*len(c.streams))
	streams = append(streams, c.streams...)

	for range c.streams {
		streams = append(streams, id)
	}

	result, err := c.client.XReadGroup(&redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  streams,
		Count:    count,
		Block:    block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("journalredis.Consumer: failed to read from group %q, %w", c.group, err)
	}

	for _, stream := range result {
		for _, entry := range stream.Messages {
			if err := c.buffer(stream.Stream, entry); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Consumer) buffer(stream string, entry redis.XMessage) error {
	fields := make(map[string]string, len(entry.Values))
	for k, v := range entry.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	key, payload := fields[KeyField], fields[PayloadField]
	delete(fields, KeyField)
	delete(fields, PayloadField)

	record, err := streaming.Record(key, fields, []byte(payload))
	if err != nil {
		logger.Warn(c.logger, "Skipping malformed stream entry",
			logger.With("stream", stream),
			logger.With("id", entry.ID),
			logger.Err(err),
		)

		if err := c.client.XAck(stream, c.group, entry.ID).Err(); err != nil {
			return fmt.Errorf("journalredis.Consumer: failed to ack malformed entry, %w", err)
		}

		return nil
	}

	c.buffered = append(c.buffered, streaming.Message{
		Topic:     c.topic,
		Partition: c.partitions[stream],
		Key:       key,
		Record:    record,
		Handle:    handle{stream: stream, id: entry.ID},
	})

	return nil
}

// Ack implements the streaming.Consumer interface.
func (c *Consumer) Ack(_ context.Context, msg streaming.Message) error {
	h, ok := msg.Handle.(handle)
	if !ok {
		return fmt.Errorf("journalredis.Consumer: unexpected message handle type %T", msg.Handle)
	}

	if err := c.client.XAck(h.stream, c.group, h.id).Err(); err != nil {
		return fmt.Errorf("journalredis.Consumer: failed to ack entry %s, %w", h.id, err)
	}

	return nil
}

// Close implements the streaming.Consumer interface.
//
// The underlying client is owned by the caller and is left open.
func (c *Consumer) Close() error {
	c.closed.Store(true)
	return nil
}
