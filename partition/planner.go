package partition

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
)

// DefaultConcurrency is the number of sequence number probes a Planner
// runs concurrently, if not specified.
const DefaultConcurrency = 8

// Catalog lists the ids of all the streams in the journal.
type Catalog interface {
	StreamIDs(ctx context.Context) ([]string, error)
}

// Probe returns the highest committed sequence number of a stream,
// or 0 if the stream has no events.
type Probe interface {
	HighestSequenceNr(ctx context.Context, streamID string) (uint64, error)
}

// Planner computes the ordered list of PartitionRanges to scan.
type Planner struct {
	// Catalog is used to resolve the All selection. Optional otherwise.
	Catalog Catalog

	Probe Probe

	// Capacity is the number of events per physical partition.
	// Defaults to journal.DefaultPartitionCapacity if unspecified.
	//
	// It must be the same capacity used when writing the events.
	Capacity uint64

	// Concurrency is the number of probes run concurrently.
	// Defaults to DefaultConcurrency if unspecified.
	Concurrency int

	Logger logger.Logger
}

var (
	errNoCatalog = errors.New("no catalog available to list all streams")
	errNoProbe   = errors.New("no sequence number probe available")
	errEmptyID   = errors.New("empty stream id")
)

// Plan returns the ranges covering all the committed events of the selected
// streams, ordered by stream (in selection order) and partition index.
//
// Plan fails with a journal.PlanningError if the catalog or the probe cannot
// be reached, or return inconsistent metadata.
func (p Planner) Plan(ctx context.Context, selection Selection) ([]journal.PartitionRange, error) {
	capacity := p.Capacity
	if capacity == 0 {
		capacity = journal.DefaultPartitionCapacity
	}

	if p.Probe == nil {
		return nil, journal.PlanningError{Err: errNoProbe}
	}

	ids, err := p.streamIDs(ctx, selection)
	if err != nil {
		return nil, err
	}

	highest, err := p.probeAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	var ranges []journal.PartitionRange
	for i, id := range ids {
		ranges = append(ranges, Ranges(id, highest[i], capacity)...)
	}

	logger.Info(p.Logger, "Planned journal partitions",
		logger.With("streams", len(ids)),
		logger.With("partitions", len(ranges)),
		logger.With("capacity", capacity),
	)

	return ranges, nil
}

func (p Planner) streamIDs(ctx context.Context, selection Selection) ([]string, error) {
	var ids []string

	switch s := selection.(type) {
	case All:
		if p.Catalog == nil {
			return nil, journal.PlanningError{Err: errNoCatalog}
		}

		catalogIDs, err := p.Catalog.StreamIDs(ctx)
		if err != nil {
			return nil, journal.PlanningError{Err: fmt.Errorf("failed to list stream ids, %w", err)}
		}

		ids = catalogIDs

	case ByIDs:
		ids = s

	default:
		return nil, journal.PlanningError{Err: fmt.Errorf("unexpected selection type, %T", s)}
	}

	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))

	for _, id := range ids {
		if id == "" {
			return nil, journal.PlanningError{Err: errEmptyID}
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	return unique, nil
}

func (p Planner) probeAll(ctx context.Context, ids []string) ([]uint64, error) {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	highest := make([]uint64, len(ids))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, id := range ids {
		group.Go(func() error {
			seqNr, err := p.Probe.HighestSequenceNr(ctx, id)
			if err != nil {
				return journal.PlanningError{
					StreamID: id,
					Err:      fmt.Errorf("failed to probe highest sequence number, %w", err),
				}
			}

			highest[i] = seqNr

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return highest, nil
}

// Ranges returns the PartitionRanges of a single stream, given its highest
// committed sequence number and the partition capacity.
//
// A stream with no events has no ranges, a stream with fewer events than
// the capacity has exactly one range, with index 0.
func Ranges(streamID string, highestSequenceNr, capacity uint64) []journal.PartitionRange {
	if highestSequenceNr == 0 || capacity == 0 {
		return nil
	}

	count := journal.PartitionIndexOf(highestSequenceNr, capacity) + 1
	ranges := make([]journal.PartitionRange, 0, count)

	for idx := range count {
		// start < highestSequenceNr, so the bounds below never overflow.
		start := idx * capacity

		ranges = append(ranges, journal.PartitionRange{
			StreamID:       streamID,
			PartitionIndex: idx,
			From:           start + 1,
			To:             start + min(capacity, highestSequenceNr-start),
			Capacity:       capacity,
		})
	}

	return ranges
}
