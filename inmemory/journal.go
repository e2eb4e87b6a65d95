// Package inmemory contains thread-safe, in-memory implementations
// of the journal storage and commit-log backends, useful for testing.
package inmemory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/get-eventually/go-journal"
)

// Journal is a thread-safe, in-memory journal.
//
// It implements the partition.Catalog, partition.Probe and scan.Store
// interfaces.
type Journal struct {
	mx       sync.RWMutex
	capacity uint64
	order    []string
	records  map[string][]journal.RawRecord
}

// NewJournal creates a new in-memory Journal, storing events in partitions
// of the given capacity.
func NewJournal(capacity uint64) *Journal {
	if capacity == 0 {
		capacity = journal.DefaultPartitionCapacity
	}

	return &Journal{
		capacity: capacity,
		records:  make(map[string][]journal.RawRecord),
	}
}

func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("inmemory.Journal: context error, %w", err)
	}

	return nil
}

// Capacity returns the partition capacity of the journal.
func (j *Journal) Capacity() uint64 { return j.capacity }

// StreamIDs returns the ids of all the streams in the journal,
// in the order they have been first written.
func (j *Journal) StreamIDs(ctx context.Context) ([]string, error) {
	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	j.mx.RLock()
	defer j.mx.RUnlock()

	return append([]string(nil), j.order...), nil
}

// HighestSequenceNr returns the highest sequence number written in the stream.
func (j *Journal) HighestSequenceNr(ctx context.Context, streamID string) (uint64, error) {
	if err := contextErr(ctx); err != nil {
		return 0, err
	}

	j.mx.RLock()
	defer j.mx.RUnlock()

	return uint64(len(j.records[streamID])), nil
}

// ScanPartition sends all the records in the partition identified by the range
// onto the provided stream, in sequence number order, then closes it.
//
// This method fails only when the context is canceled.
func (j *Journal) ScanPartition(ctx context.Context, r journal.PartitionRange, stream journal.RecordStream) error {
	defer close(stream)

	if err := contextErr(ctx); err != nil {
		return err
	}

	j.mx.RLock()
	records := j.records[r.StreamID]
	j.mx.RUnlock()

	// Records are contiguous: sequence number n is at index n-1.
	from, to := max(r.From, 1), min(r.To, uint64(len(records)))
	if from > to {
		return nil
	}

	for _, record := range records[from-1 : to] {
		if record.Key.PartitionIndex != r.PartitionIndex {
			continue
		}

		record.Payload = bytes.Clone(record.Payload)

		select {
		case stream <- record:
		case <-ctx.Done():
			return contextErr(ctx)
		}
	}

	return nil
}

// Write appends the records to the journal.
//
// Records of each stream must continue the stream from its highest sequence
// number, or a journal.SequenceConflictError is returned and nothing is written.
// The partition index is computed from the journal capacity.
func (j *Journal) Write(ctx context.Context, records ...journal.RawRecord) error {
	if err := contextErr(ctx); err != nil {
		return err
	}

	writes, err := journal.GroupByStream(records)
	if err != nil {
		return fmt.Errorf("inmemory.Journal: failed to write records, %w", err)
	}

	j.mx.Lock()
	defer j.mx.Unlock()

	for _, w := range writes {
		if highest := uint64(len(j.records[w.StreamID])); w.First() != highest+1 {
			return fmt.Errorf("inmemory.Journal: failed to write records, %w", journal.SequenceConflictError{
				StreamID: w.StreamID,
				Expected: w.First() - 1,
				Actual:   highest,
			})
		}
	}

	for _, w := range writes {
		if _, ok := j.records[w.StreamID]; !ok {
			j.order = append(j.order, w.StreamID)
		}

		for _, record := range w.Records {
			record.Key.PartitionIndex = journal.PartitionIndexOf(record.Key.SequenceNr, j.capacity)
			record.Payload = bytes.Clone(record.Payload)
			j.records[w.StreamID] = append(j.records[w.StreamID], record)
		}
	}

	return nil
}

// Append writes the payloads as the next events of the stream,
// all with the same serializer id and manifest.
func (j *Journal) Append(
	ctx context.Context,
	streamID string,
	serializerID int32,
	manifest string,
	payloads ...[]byte,
) error {
	highest, err := j.HighestSequenceNr(ctx, streamID)
	if err != nil {
		return err
	}

	records := make([]journal.RawRecord, 0, len(payloads))
	for i, payload := range payloads {
		records = append(records, journal.RawRecord{
			Key:          journal.EventKey{StreamID: streamID, SequenceNr: highest + uint64(i) + 1},
			SerializerID: serializerID,
			Manifest:     manifest,
			Payload:      payload,
		})
	}

	return j.Write(ctx, records...)
}
