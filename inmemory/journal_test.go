package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/inmemory"
	"github.com/get-eventually/go-journal/internal/journaltest"
	"github.com/get-eventually/go-journal/partition"
)

func TestJournal(t *testing.T) {
	journaltest.Run(inmemory.NewJournal(journaltest.Capacity))(t)
}

func TestJournal_Append(t *testing.T) {
	ctx := context.Background()
	j := inmemory.NewJournal(2)

	require.NoError(t, j.Append(ctx, "a", 5, "Event", []byte(`1`), []byte(`2`)))
	require.NoError(t, j.Append(ctx, "a", 5, "Event", []byte(`3`)))

	highest, err := j.HighestSequenceNr(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), highest)

	stream := make(chan journal.RawRecord, 3)
	r := journal.PartitionRange{StreamID: "a", PartitionIndex: 1, From: 3, To: 4, Capacity: 2}
	require.NoError(t, j.ScanPartition(ctx, r, stream))

	var records []journal.RawRecord
	for record := range stream {
		records = append(records, record)
	}

	require.Len(t, records, 1)
	assert.Equal(t, journal.EventKey{StreamID: "a", PartitionIndex: 1, SequenceNr: 3}, records[0].Key)
	assert.Equal(t, []byte(`3`), records[0].Payload)
}

func scanAll(t *testing.T, j *inmemory.Journal, r journal.PartitionRange) []uint64 {
	t.Helper()

	stream := make(chan journal.RawRecord, 16)
	require.NoError(t, j.ScanPartition(context.Background(), r, stream))

	var seqNrs []uint64
	for record := range stream {
		seqNrs = append(seqNrs, record.Key.SequenceNr)
	}

	return seqNrs
}

func TestJournal_ScanPartitionBounds(t *testing.T) {
	j := inmemory.NewJournal(4)
	require.NoError(t, j.Write(context.Background(), journaltest.Records("a", 1, 10)...))

	ranges := partition.Ranges("a", 10, 4)
	require.Len(t, ranges, 3)

	assert.Equal(t, []uint64{1, 2, 3, 4}, scanAll(t, j, ranges[0]))
	assert.Equal(t, []uint64{5, 6, 7, 8}, scanAll(t, j, ranges[1]))
	assert.Equal(t, []uint64{9, 10}, scanAll(t, j, ranges[2]))

	assert.Empty(t, scanAll(t, j, journal.PartitionRange{StreamID: "a", PartitionIndex: 2, From: 11, To: 12, Capacity: 4}))
	assert.Empty(t, scanAll(t, j, journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 0, To: 0, Capacity: 4}))
	assert.Empty(t, scanAll(t, j, journal.PartitionRange{StreamID: "b", PartitionIndex: 0, From: 1, To: 4, Capacity: 4}))

	// A range planned with a different capacity does not match the stored partitions.
	assert.Equal(t, []uint64{1, 2, 3, 4}, scanAll(t, j, journal.PartitionRange{StreamID: "a", PartitionIndex: 0, From: 1, To: 6, Capacity: 6}))
}

func TestJournal_WriteIsAtomic(t *testing.T) {
	ctx := context.Background()
	j := inmemory.NewJournal(2)

	err := j.Write(ctx, append(journaltest.Records("a", 1, 2), journaltest.Records("b", 2, 2)...)...)
	assert.Error(t, err)

	ids, err := j.StreamIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJournal_SequenceConflict(t *testing.T) {
	ctx := context.Background()
	j := inmemory.NewJournal(2)

	require.NoError(t, j.Write(ctx, journaltest.Records("a", 1, 2)...))

	var conflictErr journal.SequenceConflictError
	require.ErrorAs(t, j.Write(ctx, journaltest.Records("a", 2, 3)...), &conflictErr)
	assert.Equal(t, journal.SequenceConflictError{StreamID: "a", Expected: 1, Actual: 2}, conflictErr)

	assert.ErrorIs(t, j.Write(ctx, journaltest.Records("a", 3, 3)[0], journaltest.Records("a", 5, 5)[0]), journal.ErrInvalidWrite)
}
