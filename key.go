package journal

import (
	"cmp"
	"fmt"
	"slices"
)

// DefaultPartitionCapacity is the number of events held by a single
// physical partition, unless a different capacity is configured.
const DefaultPartitionCapacity uint64 = 5_000_000

// EventKey uniquely identifies a single event in the journal.
type EventKey struct {
	// StreamID is the identifier of the logical stream the event belongs to.
	StreamID string

	// PartitionIndex is the index of the physical partition holding the event.
	PartitionIndex uint64

	// SequenceNr is the 1-based position of the event in its stream.
	SequenceNr uint64
}

// Compare returns -1, 0 or +1 depending on whether the key sorts before,
// equal to or after the other key, using (StreamID, PartitionIndex, SequenceNr).
func (k EventKey) Compare(other EventKey) int {
	if c := cmp.Compare(k.StreamID, other.StreamID); c != 0 {
		return c
	}

	if c := cmp.Compare(k.PartitionIndex, other.PartitionIndex); c != 0 {
		return c
	}

	return cmp.Compare(k.SequenceNr, other.SequenceNr)
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s/%d@%d", k.StreamID, k.PartitionIndex, k.SequenceNr)
}

// PartitionIndexOf returns the index of the physical partition holding
// the event with the given sequence number.
//
// The capacity must match the one used when the events were written:
// a mismatch cannot be detected from the data alone.
func PartitionIndexOf(sequenceNr, capacity uint64) uint64 {
	if sequenceNr == 0 || capacity == 0 {
		return 0
	}

	return (sequenceNr - 1) / capacity
}

// PartitionRange describes a single physical partition to scan,
// together with the sequence number bounds it covers.
//
// Ranges are derived on every planning pass and never persisted.
type PartitionRange struct {
	StreamID       string
	PartitionIndex uint64

	// From is the lowest sequence number in the partition, inclusive.
	From uint64

	// To is the highest committed sequence number in the partition, inclusive.
	To uint64

	// Capacity is the partition capacity the range has been planned with.
	Capacity uint64
}

// Len returns the number of sequence numbers covered by the range.
func (r PartitionRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}

	return r.To - r.From + 1
}

// Contains returns true if the sequence number is inside the range bounds.
func (r PartitionRange) Contains(sequenceNr uint64) bool {
	return sequenceNr >= r.From && sequenceNr <= r.To
}

// KeyOf returns the EventKey of the event with the given sequence number
// inside this partition.
func (r PartitionRange) KeyOf(sequenceNr uint64) EventKey {
	return EventKey{
		StreamID:       r.StreamID,
		PartitionIndex: r.PartitionIndex,
		SequenceNr:     sequenceNr,
	}
}

func (r PartitionRange) String() string {
	return fmt.Sprintf("%s/%d[%d-%d]", r.StreamID, r.PartitionIndex, r.From, r.To)
}

// SortEntries sorts the entries in place by their EventKey.
//
// The journal gives no ordering across partitions: callers that need
// a total order must sort explicitly.
func SortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return a.Key.Compare(b.Key)
	})
}
