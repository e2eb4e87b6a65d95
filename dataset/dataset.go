package dataset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/materialize"
	"github.com/get-eventually/go-journal/partition"
	"github.com/get-eventually/go-journal/scan"
	"github.com/get-eventually/go-journal/serde"
)

// ErrNoSession is returned when loading a Dataset from a Session
// with no journal store attached.
var ErrNoSession = errors.New("dataset: no active session, scanner store is missing")

// Session is the execution context used to load Datasets from the journal.
type Session struct {
	Planner partition.Planner
	Scanner scan.Scanner

	// Serialization is the configuration snapshot every scan task builds
	// its own serde.Resolver from.
	Serialization serde.Config

	Logger logger.Logger
}

// Load plans the partitions of the selected streams and returns a lazy
// Dataset over them.
//
// The serializer configuration is checked before planning, so that
// a journal.ConfigurationError is returned before any scan starts.
// Planning failures are returned as journal.PlanningError.
func (s Session) Load(ctx context.Context, selection partition.Selection, opts ...Option) (*Dataset, error) {
	if s.Scanner.Store == nil {
		return nil, ErrNoSession
	}

	if _, err := serde.NewResolver(s.Serialization); err != nil {
		return nil, fmt.Errorf("dataset.Session: invalid serializer configuration, %w", err)
	}

	ranges, err := s.Planner.Plan(ctx, selection)
	if err != nil {
		return nil, fmt.Errorf("dataset.Session: failed to plan partitions, %w", err)
	}

	o := newOptions(opts...)
	d := &Dataset{
		id:            uuid.New(),
		ranges:        ranges,
		scanner:       s.Scanner,
		serialization: s.Serialization,
		logger:        s.Logger,
		persist:       o.persist,
	}

	logger.Info(s.Logger, "Dataset loaded",
		logger.With("dataset", d.id.String()),
		logger.With("partitions", len(ranges)),
		logger.With("persist", o.persist),
	)

	return d, nil
}

// Dataset is the union of the materialized records of a set of partitions.
//
// A Dataset is lazy: partitions are scanned every time it is collected,
// unless it has been persisted.
type Dataset struct {
	id            uuid.UUID
	ranges        []journal.PartitionRange
	scanner       scan.Scanner
	serialization serde.Config
	logger        logger.Logger

	mx        sync.Mutex
	persist   bool
	persisted []journal.Entry
}

// ID returns the unique identifier of the Dataset.
func (d *Dataset) ID() uuid.UUID { return d.id }

// Ranges returns the partitions covered by the Dataset.
func (d *Dataset) Ranges() []journal.PartitionRange {
	return slices.Clone(d.ranges)
}

// Persist marks the Dataset to be materialized once, on the next collection,
// and reused afterwards.
func (d *Dataset) Persist() *Dataset {
	d.mx.Lock()
	defer d.mx.Unlock()

	d.persist = true

	return d
}

// EntriesFunc is called with the materialized entries of a single partition.
type EntriesFunc func(ctx context.Context, r journal.PartitionRange, entries []journal.Entry) error

// ForEachPartition scans and materializes every partition independently,
// calling fn once per partition, in no particular order.
//
// Every task builds its own serde.Resolver from the configuration snapshot.
func (d *Dataset) ForEachPartition(ctx context.Context, fn EntriesFunc) error {
	return d.scanner.ScanAll(ctx, d.ranges, func(
		ctx context.Context,
		r journal.PartitionRange,
		records []journal.RawRecord,
	) error {
		materializer, err := materialize.New(d.serialization)
		if err != nil {
			return fmt.Errorf("dataset.Dataset: failed to build materializer, %w", err)
		}

		entries := make([]journal.Entry, 0, len(records))

		for _, record := range records {
			entry, err := materializer.Batch(record)
			if err != nil {
				return fmt.Errorf("dataset.Dataset: failed to materialize partition %s, %w", r, err)
			}

			entries = append(entries, entry)
		}

		return fn(ctx, r, entries)
	})
}

// Collect returns the union of all the materialized partitions.
//
// The result contains exactly one entry per record: an event, or an error
// sentinel for records that could not be decoded. No order is guaranteed.
func (d *Dataset) Collect(ctx context.Context) ([]journal.Entry, error) {
	d.mx.Lock()
	persist := d.persist

	if !persist {
		d.mx.Unlock()
	} else {
		defer d.mx.Unlock()

		if d.persisted != nil {
			return slices.Clone(d.persisted), nil
		}
	}

	var (
		mx      sync.Mutex
		entries []journal.Entry
	)

	err := d.ForEachPartition(ctx, func(_ context.Context, _ journal.PartitionRange, partition []journal.Entry) error {
		mx.Lock()
		defer mx.Unlock()

		entries = append(entries, partition...)

		return nil
	})
	if err != nil {
		logger.Error(d.logger, "Dataset collection failed",
			logger.With("dataset", d.id.String()),
			logger.Err(err),
		)

		return nil, fmt.Errorf("dataset.Dataset: collection of dataset %s failed, %w", d.id, err)
	}

	if entries == nil {
		entries = []journal.Entry{}
	}

	logger.Info(d.logger, "Dataset collected",
		logger.With("dataset", d.id.String()),
		logger.With("entries", len(entries)),
		logger.With("failures", len(Failures(entries))),
	)

	if persist {
		d.persisted = entries
		return slices.Clone(entries), nil
	}

	return entries, nil
}

// Sorted returns the union of all the materialized partitions,
// sorted by (StreamID, PartitionIndex, SequenceNr).
func (d *Dataset) Sorted(ctx context.Context) ([]journal.Entry, error) {
	entries, err := d.Collect(ctx)
	if err != nil {
		return nil, err
	}

	journal.SortEntries(entries)

	return entries, nil
}

// Count returns the number of entries in the Dataset, error sentinels included.
func (d *Dataset) Count(ctx context.Context) (int, error) {
	entries, err := d.Collect(ctx)
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

// Events returns the events of the successfully decoded entries.
func Events(entries []journal.Entry) []journal.Event {
	events := make([]journal.Event, 0, len(entries))

	for _, entry := range entries {
		if !entry.Failed() {
			events = append(events, entry.Event)
		}
	}

	return events
}

// Failures returns the error sentinels among the entries.
func Failures(entries []journal.Entry) []journal.Entry {
	var failures []journal.Entry

	for _, entry := range entries {
		if entry.Failed() {
			failures = append(failures, entry)
		}
	}

	return failures
}
