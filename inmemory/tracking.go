package inmemory

import (
	"context"
	"sync"

	"github.com/get-eventually/go-journal"
)

// PartitionScanner is the scanning side of a journal backend.
type PartitionScanner interface {
	ScanPartition(ctx context.Context, r journal.PartitionRange, stream journal.RecordStream) error
}

// Fault decides whether a scan attempt of a range should fail, and with
// which error. The attempt counter starts at 1.
type Fault func(r journal.PartitionRange, attempt int) error

// TrackingScanner wraps a PartitionScanner to record the scans performed
// on it, and optionally inject faults.
type TrackingScanner struct {
	PartitionScanner
	Fault Fault

	mx       sync.Mutex
	attempts map[journal.PartitionRange]int
}

// ScanPartition records the scan attempt, then either fails with the
// injected fault or delegates to the wrapped scanner.
func (ts *TrackingScanner) ScanPartition(
	ctx context.Context,
	r journal.PartitionRange,
	stream journal.RecordStream,
) error {
	ts.mx.Lock()
	if ts.attempts == nil {
		ts.attempts = make(map[journal.PartitionRange]int)
	}

	ts.attempts[r]++
	attempt := ts.attempts[r]
	ts.mx.Unlock()

	if ts.Fault != nil {
		if err := ts.Fault(r, attempt); err != nil {
			close(stream)
			return err
		}
	}

	return ts.PartitionScanner.ScanPartition(ctx, r, stream)
}

// Attempts returns how many times the range has been scanned.
func (ts *TrackingScanner) Attempts(r journal.PartitionRange) int {
	ts.mx.Lock()
	defer ts.mx.Unlock()

	return ts.attempts[r]
}

// Scans returns the total number of scan attempts.
func (ts *TrackingScanner) Scans() int {
	ts.mx.Lock()
	defer ts.mx.Unlock()

	total := 0
	for _, n := range ts.attempts {
		total += n
	}

	return total
}
