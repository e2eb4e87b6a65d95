package journal_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal"
)

func TestPartitionIndexOf(t *testing.T) {
	testCases := []struct {
		sequenceNr, capacity, expected uint64
	}{
		{sequenceNr: 1, capacity: 3, expected: 0},
		{sequenceNr: 3, capacity: 3, expected: 0},
		{sequenceNr: 4, capacity: 3, expected: 1},
		{sequenceNr: 7, capacity: 3, expected: 2},
		{sequenceNr: 5_000_000, capacity: journal.DefaultPartitionCapacity, expected: 0},
		{sequenceNr: 5_000_001, capacity: journal.DefaultPartitionCapacity, expected: 1},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("seq %d with capacity %d", tc.sequenceNr, tc.capacity), func(t *testing.T) {
			assert.Equal(t, tc.expected, journal.PartitionIndexOf(tc.sequenceNr, tc.capacity))
		})
	}
}

func TestPartitionRange(t *testing.T) {
	r := journal.PartitionRange{StreamID: "a", PartitionIndex: 1, From: 4, To: 6, Capacity: 3}

	assert.Equal(t, uint64(3), r.Len())
	assert.True(t, r.Contains(4))
	assert.True(t, r.Contains(6))
	assert.False(t, r.Contains(7))
	assert.Equal(t, journal.EventKey{StreamID: "a", PartitionIndex: 1, SequenceNr: 5}, r.KeyOf(5))
	assert.Equal(t, "a/1[4-6]", r.String())
}

func TestSortEntries(t *testing.T) {
	entries := []journal.Entry{
		{Key: journal.EventKey{StreamID: "b", PartitionIndex: 0, SequenceNr: 1}},
		{Key: journal.EventKey{StreamID: "a", PartitionIndex: 1, SequenceNr: 4}},
		{Key: journal.EventKey{StreamID: "a", PartitionIndex: 0, SequenceNr: 2}},
		{Key: journal.EventKey{StreamID: "a", PartitionIndex: 0, SequenceNr: 1}},
	}

	journal.SortEntries(entries)

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key.String())
	}

	assert.Equal(t, []string{"a/0@1", "a/0@2", "a/1@4", "b/0@1"}, keys)
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")

	t.Run("deserialization errors unwrap to their cause", func(t *testing.T) {
		err := fmt.Errorf("wrapped, %w", journal.DeserializationError{
			Key:      journal.EventKey{StreamID: "a", SequenceNr: 1},
			Manifest: "X",
			Err:      cause,
		})

		var deserializationErr journal.DeserializationError
		assert.ErrorAs(t, err, &deserializationErr)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "X", deserializationErr.Manifest)
	})

	t.Run("planning errors name the stream when known", func(t *testing.T) {
		err := journal.PlanningError{StreamID: "a", Err: cause}
		assert.Contains(t, err.Error(), `"a"`)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("configuration errors unwrap to their cause", func(t *testing.T) {
		err := journal.ConfigurationError{Manifest: "X", Err: journal.ErrNoBinding}
		assert.ErrorIs(t, err, journal.ErrNoBinding)
	})
}

func TestGroupByStream(t *testing.T) {
	record := func(id string, seqNr uint64) journal.RawRecord {
		return journal.RawRecord{Key: journal.EventKey{StreamID: id, SequenceNr: seqNr}}
	}

	writes, err := journal.GroupByStream([]journal.RawRecord{
		record("b", 4), record("a", 1), record("b", 5), record("a", 2),
	})
	require.NoError(t, err)
	require.Len(t, writes, 2)

	assert.Equal(t, "b", writes[0].StreamID)
	assert.Equal(t, uint64(4), writes[0].First())
	assert.Equal(t, uint64(5), writes[0].Last())
	assert.Equal(t, "a", writes[1].StreamID)
	assert.Len(t, writes[1].Records, 2)

	_, err = journal.GroupByStream([]journal.RawRecord{record("a", 1), record("a", 3)})
	assert.ErrorIs(t, err, journal.ErrInvalidWrite)

	_, err = journal.GroupByStream([]journal.RawRecord{record("a", 0)})
	assert.ErrorIs(t, err, journal.ErrInvalidWrite)
}
