// Package journalfirestore contains a journal storage implementation
// targeted to Google Cloud Firestore.
package journalfirestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/partition"
	"github.com/get-eventually/go-journal/scan"
)

// Default collection names used by the Journal.
const (
	DefaultJournalCollection = "journal"
	DefaultStreamsCollection = "journal_streams"
)

var (
	_ partition.Catalog = Journal{}
	_ partition.Probe   = Journal{}
	_ scan.Store        = Journal{}
)

type streamDocument struct {
	StreamID          string    `firestore:"stream_id"`
	HighestSequenceNr int64     `firestore:"highest_sequence_nr"`
	CreatedAt         time.Time `firestore:"created_at,serverTimestamp"`
}

type recordDocument struct {
	StreamID     string `firestore:"stream_id"`
	PartitionNr  int64  `firestore:"partition_nr"`
	SequenceNr   int64  `firestore:"sequence_nr"`
	SerializerID int32  `firestore:"serializer_id"`
	Manifest     string `firestore:"manifest"`
	Payload      []byte `firestore:"payload"`
}

// Journal is a journal storage implementation using Firestore.
//
// Records are stored as documents of the journal collection, keyed by
// stream id and sequence number, and the highest sequence number of each
// stream in the streams collection. Writes are transactional.
type Journal struct {
	Client *firestore.Client

	// Capacity is the number of events per physical partition.
	// Defaults to journal.DefaultPartitionCapacity if unspecified.
	Capacity uint64
}

func (j Journal) capacity() uint64 {
	if j.Capacity == 0 {
		return journal.DefaultPartitionCapacity
	}

	return j.Capacity
}

func (j Journal) journalCollection() *firestore.CollectionRef {
	return j.Client.Collection(DefaultJournalCollection)
}

func (j Journal) streamsCollection() *firestore.CollectionRef {
	return j.Client.Collection(DefaultStreamsCollection)
}

func recordID(streamID string, sequenceNr uint64) string {
	return fmt.Sprintf("%s@{%d}", streamID, sequenceNr)
}

// StreamIDs implements the partition.Catalog interface.
// Stream ids are returned in the order they have been first written.
func (j Journal) StreamIDs(ctx context.Context) ([]string, error) {
	iter := j.streamsCollection().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var ids []string

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("journalfirestore.Journal.StreamIDs: failed while reading iterator, %w", err)
		}

		ids = append(ids, doc.Ref.ID)
	}

	return ids, nil
}

// HighestSequenceNr implements the partition.Probe interface.
func (j Journal) HighestSequenceNr(ctx context.Context, streamID string) (uint64, error) {
	doc, err := j.streamsCollection().Doc(streamID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("journalfirestore.Journal.HighestSequenceNr: failed to get stream %q, %w", streamID, err)
	}

	var stream streamDocument
	if err := doc.DataTo(&stream); err != nil {
		return 0, fmt.Errorf("journalfirestore.Journal.HighestSequenceNr: failed to read stream %q, %w", streamID, err)
	}

	return uint64(stream.HighestSequenceNr), nil //nolint:gosec // Never negative.
}

// ScanPartition implements the scan.Store interface.
func (j Journal) ScanPartition(ctx context.Context, r journal.PartitionRange, stream journal.RecordStream) error {
	defer close(stream)

	//nolint:gosec // Sequence numbers and partition indexes fit in an int64.
	iter := j.journalCollection().
		Where("stream_id", "==", r.StreamID).
		Where("partition_nr", "==", int64(r.PartitionIndex)).
		Where("sequence_nr", ">=", int64(r.From)).
		Where("sequence_nr", "<=", int64(r.To)).
		OrderBy("sequence_nr", firestore.Asc).
		Documents(ctx)

	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("journalfirestore.Journal.ScanPartition: failed while reading iterator, %w", err)
		}

		var record recordDocument
		if err := doc.DataTo(&record); err != nil {
			return fmt.Errorf("journalfirestore.Journal.ScanPartition: failed to read document %q, %w", doc.Ref.ID, err)
		}

		select {
		case stream <- journal.RawRecord{
			Key:          r.KeyOf(uint64(record.SequenceNr)), //nolint:gosec // Never negative.
			SerializerID: record.SerializerID,
			Manifest:     record.Manifest,
			Payload:      record.Payload,
		}:
		case <-ctx.Done():
			return fmt.Errorf("journalfirestore.Journal.ScanPartition: context error, %w", ctx.Err())
		}
	}
}

// Write appends the records to the journal, in a single transaction.
//
// Records of each stream must continue the stream from its highest committed
// sequence number, or a journal.SequenceConflictError is returned and nothing is written.
func (j Journal) Write(ctx context.Context, records ...journal.RawRecord) error {
	writes, err := journal.GroupByStream(records)
	if err != nil {
		return fmt.Errorf("journalfirestore.Journal.Write: failed to write records, %w", err)
	}

	err = j.Client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		// Firestore transactions require all reads to happen before any write.
		highest := make([]int64, len(writes))
		exists := make([]bool, len(writes))

		for i, w := range writes {
			doc, err := tx.Get(j.streamsCollection().Doc(w.StreamID))
			if err != nil && status.Code(err) != codes.NotFound {
				return fmt.Errorf("failed to get stream %q, %w", w.StreamID, err)
			}

			if err == nil {
				var stream streamDocument
				if err := doc.DataTo(&stream); err != nil {
					return fmt.Errorf("failed to read stream %q, %w", w.StreamID, err)
				}

				highest[i], exists[i] = stream.HighestSequenceNr, true
			}

			//nolint:gosec // Sequence numbers fit in an int64.
			if int64(w.First()-1) != highest[i] {
				return journal.SequenceConflictError{
					StreamID: w.StreamID,
					Expected: w.First() - 1,
					Actual:   uint64(highest[i]),
				}
			}
		}

		for i, w := range writes {
			if err := j.write(tx, w, exists[i]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("journalfirestore.Journal.Write: failed to commit transaction, %w", err)
	}

	return nil
}

//nolint:gosec // Sequence numbers and partition indexes fit in an int64.
func (j Journal) write(tx *firestore.Transaction, w journal.StreamWrite, exists bool) error {
	streamRef := j.streamsCollection().Doc(w.StreamID)

	var err error
	if exists {
		err = tx.Update(streamRef, []firestore.Update{
			{Path: "highest_sequence_nr", Value: int64(w.Last())},
		})
	} else {
		err = tx.Create(streamRef, streamDocument{
			StreamID:          w.StreamID,
			HighestSequenceNr: int64(w.Last()),
		})
	}

	if err != nil {
		return fmt.Errorf("failed to update stream %q, %w", w.StreamID, err)
	}

	for _, record := range w.Records {
		docRef := j.journalCollection().Doc(recordID(w.StreamID, record.Key.SequenceNr))

		if err := tx.Create(docRef, recordDocument{
			StreamID:     w.StreamID,
			PartitionNr:  int64(journal.PartitionIndexOf(record.Key.SequenceNr, j.capacity())),
			SequenceNr:   int64(record.Key.SequenceNr),
			SerializerID: record.SerializerID,
			Manifest:     record.Manifest,
			Payload:      record.Payload,
		}); err != nil {
			return fmt.Errorf("failed to append record %d of stream %q, %w", record.Key.SequenceNr, w.StreamID, err)
		}
	}

	return nil
}
