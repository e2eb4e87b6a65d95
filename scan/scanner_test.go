package scan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/inmemory"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/partition"
	"github.com/get-eventually/go-journal/scan"
)

var errTransient = errors.New("transient store failure")

// sliceStore sends a fixed list of records for every partition.
type sliceStore []journal.RawRecord

func (s sliceStore) ScanPartition(_ context.Context, _ journal.PartitionRange, stream journal.RecordStream) error {
	defer close(stream)

	for _, record := range s {
		stream <- record
	}

	return nil
}

// flakyStore sends the first record of the partition, then fails,
// for the first `failures` attempts.
type flakyStore struct {
	*inmemory.Journal
	failures int

	mx       sync.Mutex
	attempts int
}

func (s *flakyStore) ScanPartition(ctx context.Context, r journal.PartitionRange, stream journal.RecordStream) error {
	s.mx.Lock()
	s.attempts++
	attempt := s.attempts
	s.mx.Unlock()

	if attempt > s.failures {
		return s.Journal.ScanPartition(ctx, r, stream)
	}

	defer close(stream)

	stream <- journal.RawRecord{Key: r.KeyOf(r.From), SerializerID: 5, Manifest: "m"}

	return errTransient
}

func newJournal(t *testing.T, events int) *inmemory.Journal {
	t.Helper()

	store := inmemory.NewJournal(3)
	payloads := make([][]byte, events)

	for i := range payloads {
		payloads[i] = []byte(`{}`)
	}

	require.NoError(t, store.Append(context.Background(), "a", 5, "m", payloads...))

	return store
}

func sequenceNrs(records []journal.RawRecord) []uint64 {
	seqNrs := make([]uint64, 0, len(records))
	for _, record := range records {
		seqNrs = append(seqNrs, record.Key.SequenceNr)
	}

	return seqNrs
}

func TestScanner_Scan(t *testing.T) {
	ctx := context.Background()
	store := newJournal(t, 7)
	ranges := partition.Ranges("a", 7, 3)

	t.Run("scanning range index 1 yields records 4, 5 and 6 in order", func(t *testing.T) {
		scanner := scan.Scanner{Store: store, Logger: logger.NewTest(t)}

		records, err := scanner.Scan(ctx, ranges[1])
		require.NoError(t, err)
		assert.Equal(t, []uint64{4, 5, 6}, sequenceNrs(records))

		for _, record := range records {
			assert.Equal(t, uint64(1), record.Key.PartitionIndex)
		}
	})

	t.Run("the last, partially filled partition is scanned up to its bound", func(t *testing.T) {
		records, err := scan.Scanner{Store: store}.Scan(ctx, ranges[2])
		require.NoError(t, err)
		assert.Equal(t, []uint64{7}, sequenceNrs(records))
	})

	t.Run("transient failures are retried and partial output is discarded", func(t *testing.T) {
		flaky := &flakyStore{Journal: store, failures: 2}
		scanner := scan.Scanner{
			Store:      flaky,
			Attempts:   3,
			RetryDelay: time.Millisecond,
			Logger:     logger.NewTest(t),
		}

		records, err := scanner.Scan(ctx, ranges[0])
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3}, sequenceNrs(records))
		assert.Equal(t, 3, flaky.attempts)
	})

	t.Run("exhausting the attempts fails with a scan error", func(t *testing.T) {
		flaky := &flakyStore{Journal: store, failures: 5}
		scanner := scan.Scanner{Store: flaky, Attempts: 2, RetryDelay: time.Millisecond}

		records, err := scanner.Scan(ctx, ranges[0])
		assert.Nil(t, records)

		var scanErr journal.ScanError
		require.ErrorAs(t, err, &scanErr)
		assert.Equal(t, ranges[0], scanErr.Range)
		assert.Equal(t, uint(2), scanErr.Attempts)
		assert.ErrorIs(t, err, errTransient)
	})

	t.Run("out of order records fail the scan without retries", func(t *testing.T) {
		r := journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 1, To: 3, Capacity: 3}
		store := sliceStore{
			{Key: r.KeyOf(1)},
			{Key: r.KeyOf(3)},
			{Key: r.KeyOf(2)},
		}

		_, err := scan.Scanner{Store: store, AllowGaps: true}.Scan(ctx, r)

		var scanErr journal.ScanError
		require.ErrorAs(t, err, &scanErr)
		assert.Equal(t, uint(1), scanErr.Attempts)
		assert.ErrorIs(t, err, scan.ErrInconsistentPartition)
	})

	t.Run("duplicated records fail the scan", func(t *testing.T) {
		r := journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 1, To: 2, Capacity: 3}
		store := sliceStore{{Key: r.KeyOf(1)}, {Key: r.KeyOf(1)}, {Key: r.KeyOf(2)}}

		_, err := scan.Scanner{Store: store}.Scan(ctx, r)
		assert.ErrorIs(t, err, scan.ErrInconsistentPartition)
	})

	t.Run("records of another partition fail the scan", func(t *testing.T) {
		r := journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 1, To: 1, Capacity: 3}
		store := sliceStore{{Key: journal.EventKey{StreamID: "b", SequenceNr: 1}}}

		_, err := scan.Scanner{Store: store}.Scan(ctx, r)
		assert.ErrorIs(t, err, scan.ErrInconsistentPartition)
	})

	t.Run("gaps fail the scan unless allowed", func(t *testing.T) {
		r := journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 1, To: 3, Capacity: 3}
		store := sliceStore{{Key: r.KeyOf(1)}, {Key: r.KeyOf(3)}}

		_, err := scan.Scanner{Store: store}.Scan(ctx, r)
		assert.ErrorIs(t, err, scan.ErrInconsistentPartition)

		records, err := scan.Scanner{Store: store, AllowGaps: true}.Scan(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 3}, sequenceNrs(records))
	})

	t.Run("missing records at the end of the partition fail the scan", func(t *testing.T) {
		r := journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 1, To: 3, Capacity: 3}
		store := sliceStore{{Key: r.KeyOf(1)}, {Key: r.KeyOf(2)}}

		_, err := scan.Scanner{Store: store}.Scan(ctx, r)
		assert.ErrorIs(t, err, scan.ErrInconsistentPartition)
	})

	t.Run("a canceled context is not retried", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()

		tracking := &inmemory.TrackingScanner{PartitionScanner: store}

		_, err := scan.Scanner{Store: tracking, Attempts: 5}.Scan(ctx, ranges[0])
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, tracking.Scans(), 1)
	})
}

func TestScanner_ScanAll(t *testing.T) {
	ctx := context.Background()
	store := newJournal(t, 7)
	ranges := partition.Ranges("a", 7, 3)

	t.Run("every range is scanned exactly once", func(t *testing.T) {
		tracking := &inmemory.TrackingScanner{PartitionScanner: store}
		scanner := scan.Scanner{Store: tracking, Parallelism: 2}

		var (
			mx      sync.Mutex
			scanned = make(map[uint64][]uint64)
		)

		err := scanner.ScanAll(ctx, ranges, func(_ context.Context, r journal.PartitionRange, records []journal.RawRecord) error {
			mx.Lock()
			defer mx.Unlock()

			scanned[r.PartitionIndex] = sequenceNrs(records)

			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, map[uint64][]uint64{
			0: {1, 2, 3},
			1: {4, 5, 6},
			2: {7},
		}, scanned)

		for _, r := range ranges {
			assert.Equal(t, 1, tracking.Attempts(r))
		}
	})

	t.Run("a failing range fails the whole job", func(t *testing.T) {
		tracking := &inmemory.TrackingScanner{
			PartitionScanner: store,
			Fault: func(r journal.PartitionRange, _ int) error {
				if r.PartitionIndex == 1 {
					return errTransient
				}

				return nil
			},
		}

		scanner := scan.Scanner{Store: tracking, Attempts: 2, RetryDelay: time.Millisecond}

		err := scanner.ScanAll(ctx, ranges, func(context.Context, journal.PartitionRange, []journal.RawRecord) error {
			return nil
		})

		var scanErr journal.ScanError
		require.ErrorAs(t, err, &scanErr)
		assert.Equal(t, ranges[1], scanErr.Range)
		assert.Equal(t, 2, tracking.Attempts(ranges[1]))
	})

	t.Run("errors from the partition callback are returned", func(t *testing.T) {
		callbackErr := errors.New("sink full")

		err := scan.Scanner{Store: store}.ScanAll(ctx, ranges, func(context.Context, journal.PartitionRange, []journal.RawRecord) error {
			return callbackErr
		})
		assert.ErrorIs(t, err, callbackErr)
	})
}
