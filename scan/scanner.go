package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
)

// Default values used by a Scanner when not specified.
const (
	DefaultAttempts   uint = 3
	DefaultRetryDelay      = 100 * time.Millisecond
	DefaultBufferSize      = 256
)

// ErrInconsistentPartition is returned when the records read from a partition
// do not respect the ordering guaranteed by the storage.
// Scans failing with this error are not retried.
var ErrInconsistentPartition = errors.New("scan: inconsistent partition")

// Store reads the records of a single physical partition.
//
// Implementations must send the records within the range bounds onto
// the stream in increasing sequence number order, and close the stream
// before returning, on every exit path.
type Store interface {
	ScanPartition(ctx context.Context, r journal.PartitionRange, stream journal.RecordStream) error
}

// PartitionFunc is called with the records of a successfully scanned partition.
type PartitionFunc func(ctx context.Context, r journal.PartitionRange, records []journal.RawRecord) error

// Scanner scans journal partitions from a Store.
type Scanner struct {
	Store Store

	// Attempts is the maximum number of times a partition scan is attempted
	// before failing the whole job. Defaults to DefaultAttempts if unspecified.
	Attempts uint

	// RetryDelay is the base delay between two attempts, doubled on every retry.
	// Defaults to DefaultRetryDelay if unspecified.
	RetryDelay time.Duration

	// Parallelism is the number of partitions scanned concurrently by ScanAll.
	// Defaults to GOMAXPROCS if unspecified.
	Parallelism int

	// BufferSize is the size of the buffered channel used to receive
	// records from the Store. Defaults to DefaultBufferSize if unspecified.
	BufferSize int

	// AllowGaps disables the check on missing sequence numbers,
	// e.g. for journals where events can be deleted.
	AllowGaps bool

	Logger logger.Logger
}

func (s Scanner) attempts() uint {
	if s.Attempts == 0 {
		return DefaultAttempts
	}

	return s.Attempts
}

func (s Scanner) retryDelay() time.Duration {
	if s.RetryDelay <= 0 {
		return DefaultRetryDelay
	}

	return s.RetryDelay
}

func (s Scanner) parallelism() int {
	if s.Parallelism <= 0 {
		return runtime.GOMAXPROCS(0)
	}

	return s.Parallelism
}

func (s Scanner) bufferSize() int {
	if s.BufferSize <= 0 {
		return DefaultBufferSize
	}

	return s.BufferSize
}

func isRetryable(err error) bool {
	return !errors.Is(err, ErrInconsistentPartition) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Scan reads all the records of the partition, in sequence number order.
//
// Failed attempts are retried up to the configured number of attempts;
// the records read by a failed attempt are discarded.
// Scan fails with a journal.ScanError once the attempts are exhausted.
func (s Scanner) Scan(ctx context.Context, r journal.PartitionRange) ([]journal.RawRecord, error) {
	var (
		records  []journal.RawRecord
		attempts uint
	)

	err := retry.Do(
		func() error {
			attempts++

			var err error
			records, err = s.scanOnce(ctx, r)

			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts()),
		retry.Delay(s.retryDelay()),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn(s.Logger, "Partition scan failed, retrying",
				logger.With("partition", r.String()),
				logger.With("attempt", n+1),
				logger.Err(err),
			)
		}),
	)
	if err != nil {
		return nil, journal.ScanError{Range: r, Attempts: attempts, Err: err}
	}

	logger.Debug(s.Logger, "Partition scanned",
		logger.With("partition", r.String()),
		logger.With("records", len(records)),
	)

	return records, nil
}

func (s Scanner) scanOnce(ctx context.Context, r journal.PartitionRange) ([]journal.RawRecord, error) {
	if s.Store == nil {
		return nil, errors.New("scan.Scanner: no store configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := make(chan journal.RawRecord, s.bufferSize())
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.Store.ScanPartition(ctx, r, stream) })

	var (
		records  = make([]journal.RawRecord, 0, min(r.Len(), uint64(s.bufferSize())))
		guard    = newOrderGuard(r, s.AllowGaps)
		guardErr error
	)

	// The stream must be drained until closed, even after a violation,
	// so that the Store can return.
	for record := range stream {
		if guardErr != nil {
			continue
		}

		if err := guard.check(record); err != nil {
			guardErr = err
			cancel()

			continue
		}

		records = append(records, record)
	}

	storeErr := group.Wait()

	switch {
	case guardErr != nil:
		return nil, guardErr
	case storeErr != nil:
		return nil, fmt.Errorf("scan.Scanner: store failed to scan partition, %w", storeErr)
	}

	if err := guard.complete(); err != nil {
		return nil, err
	}

	return records, nil
}

// ScanAll scans all the ranges, running one independent task per range,
// and calls fn with the records of each partition as soon as it has been scanned.
//
// Ranges are scanned and reported in no particular order. The first error,
// either from a scan or from fn, cancels the remaining tasks and is returned.
func (s Scanner) ScanAll(ctx context.Context, ranges []journal.PartitionRange, fn PartitionFunc) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.parallelism())

	for _, r := range ranges {
		group.Go(func() error {
			records, err := s.Scan(ctx, r)
			if err != nil {
				return err
			}

			return fn(ctx, r, records)
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("scan.Scanner: failed to scan all partitions, %w", err)
	}

	return nil
}
