package scan

import (
	"fmt"

	"github.com/get-eventually/go-journal"
)

// orderGuard checks the records of a partition against the storage
// ordering guarantees, one record at a time.
type orderGuard struct {
	r         journal.PartitionRange
	allowGaps bool
	last      uint64
}

func newOrderGuard(r journal.PartitionRange, allowGaps bool) *orderGuard {
	return &orderGuard{r: r, allowGaps: allowGaps}
}

func (g *orderGuard) check(record journal.RawRecord) error {
	key := record.Key

	if key.StreamID != g.r.StreamID || key.PartitionIndex != g.r.PartitionIndex {
		return fmt.Errorf("%w: record %s does not belong to partition %s", ErrInconsistentPartition, key, g.r)
	}

	if !g.r.Contains(key.SequenceNr) {
		return fmt.Errorf("%w: record %s is out of the partition bounds %s", ErrInconsistentPartition, key, g.r)
	}

	if g.last != 0 && key.SequenceNr <= g.last {
		return fmt.Errorf(
			"%w: record %s is not after the previous sequence number %d",
			ErrInconsistentPartition, key, g.last,
		)
	}

	if !g.allowGaps && key.SequenceNr != g.next() {
		return fmt.Errorf(
			"%w: missing sequence numbers before record %s, expected %d",
			ErrInconsistentPartition, key, g.next(),
		)
	}

	g.last = key.SequenceNr

	return nil
}

func (g *orderGuard) next() uint64 {
	if g.last == 0 {
		return g.r.From
	}

	return g.last + 1
}

// complete checks that no record is missing at the end of the partition.
func (g *orderGuard) complete() error {
	if g.allowGaps || g.last == g.r.To {
		return nil
	}

	return fmt.Errorf(
		"%w: partition %s ended at sequence number %d, expected %d",
		ErrInconsistentPartition, g.r, g.last, g.r.To,
	)
}
