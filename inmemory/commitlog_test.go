package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal/inmemory"
	"github.com/get-eventually/go-journal/internal/journaltest"
	"github.com/get-eventually/go-journal/streaming"
)

func TestCommitLog(t *testing.T) {
	ctx := context.Background()
	cl := inmemory.NewCommitLog(4)
	params := streaming.ConsumerParams{GroupID: "group", OffsetReset: streaming.OffsetEarliest}

	require.NoError(t, cl.Publish(ctx, "topic", journaltest.Records("a", 1, 3)...))

	t.Run("partitions are split among consumers", func(t *testing.T) {
		consumers, err := cl.Subscribe(ctx, params, streaming.TopicSubscription{Topic: "topic", Parallelism: 8})
		require.NoError(t, err)
		assert.Len(t, consumers, 4)

		consumers, err = cl.Subscribe(ctx, params, streaming.TopicSubscription{Topic: "topic", Parallelism: 0})
		require.NoError(t, err)
		assert.Len(t, consumers, 1)
	})

	t.Run("records of a stream are routed to the same partition, in order", func(t *testing.T) {
		consumers, err := cl.Subscribe(ctx, params, streaming.TopicSubscription{Topic: "topic", Parallelism: 1})
		require.NoError(t, err)

		consumer := consumers[0]
		partition := streaming.PartitionOf("a", 4)

		for seqNr := uint64(1); seqNr <= 3; seqNr++ {
			msg, err := consumer.Receive(ctx)
			require.NoError(t, err)

			assert.Equal(t, "a", msg.Key)
			assert.Equal(t, partition, msg.Partition)
			assert.Equal(t, seqNr, msg.Record.Key.SequenceNr)

			require.NoError(t, consumer.Ack(ctx, msg))
		}

		assert.Equal(t, 3, cl.Committed("group", "topic", partition))
		require.NoError(t, consumer.Close())

		_, err = consumer.Receive(ctx)
		assert.Error(t, err)
	})

	t.Run("receive blocks until a record is published", func(t *testing.T) {
		latest := streaming.ConsumerParams{GroupID: "other", OffsetReset: streaming.OffsetLatest}

		consumers, err := cl.Subscribe(ctx, latest, streaming.TopicSubscription{Topic: "topic", Parallelism: 1})
		require.NoError(t, err)

		timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err = consumers[0].Receive(timeout)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		go func() {
			time.Sleep(10 * time.Millisecond)
			assert.NoError(t, cl.Publish(ctx, "topic", journaltest.Records("a", 4, 4)...))
		}()

		msg, err := consumers[0].Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), msg.Record.Key.SequenceNr)
	})
}
