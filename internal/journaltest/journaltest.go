// Package journaltest contains the conformance suite every journal
// storage backend must pass.
package journaltest

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/dataset"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/partition"
	"github.com/get-eventually/go-journal/scan"
	"github.com/get-eventually/go-journal/serde"
)

// Capacity is the partition capacity the Journal under test must use.
const Capacity uint64 = 3

// Manifest is the manifest of the records written by the suite.
const Manifest = "journaltest.Incremented"

// Journal is the set of interfaces implemented by a journal storage backend.
type Journal interface {
	partition.Catalog
	partition.Probe
	scan.Store

	Write(ctx context.Context, records ...journal.RawRecord) error
}

// Records returns the records of the stream in the [from, to] range,
// with JSON payloads.
func Records(streamID string, from, to uint64) []journal.RawRecord {
	records := make([]journal.RawRecord, 0, to-from+1)

	for seqNr := from; seqNr <= to; seqNr++ {
		records = append(records, journal.RawRecord{
			Key:          journal.EventKey{StreamID: streamID, SequenceNr: seqNr},
			SerializerID: serde.SerializerIDJSON,
			Manifest:     Manifest,
			Payload:      []byte(fmt.Sprintf(`{"value":%d}`, seqNr)),
		})
	}

	return records
}

func newStreamID(name string) string {
	return name + "-" + uuid.NewString()
}

// Run returns an executable testing suite running on the Journal provided.
//
// The suite writes streams with unique ids, so it can run against
// a non-empty store.
func Run(j Journal) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()

		planner := func(t *testing.T) partition.Planner {
			return partition.Planner{Catalog: j, Probe: j, Capacity: Capacity, Logger: logger.NewTest(t)}
		}

		t.Run("streams with no events have no partitions", func(t *testing.T) {
			id := newStreamID("empty")

			highest, err := j.HighestSequenceNr(ctx, id)
			require.NoError(t, err)
			assert.Zero(t, highest)

			ranges, err := planner(t).Plan(ctx, partition.ByIDs{id})
			require.NoError(t, err)
			assert.Empty(t, ranges)
		})

		t.Run("partitions are planned and scanned in sequence number order", func(t *testing.T) {
			id := newStreamID("a")
			require.NoError(t, j.Write(ctx, Records(id, 1, 7)...))

			highest, err := j.HighestSequenceNr(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, uint64(7), highest)

			ranges, err := planner(t).Plan(ctx, partition.ByIDs{id})
			require.NoError(t, err)
			assert.Equal(t, []journal.PartitionRange{
				{StreamID: id, PartitionIndex: 0, From: 1, To: 3, Capacity: Capacity},
				{StreamID: id, PartitionIndex: 1, From: 4, To: 6, Capacity: Capacity},
				{StreamID: id, PartitionIndex: 2, From: 7, To: 7, Capacity: Capacity},
			}, ranges)

			records, err := scan.Scanner{Store: j}.Scan(ctx, ranges[1])
			require.NoError(t, err)

			expected := Records(id, 4, 6)
			for i := range expected {
				expected[i].Key.PartitionIndex = 1
			}

			assert.Equal(t, expected, records)
		})

		t.Run("writes must continue the stream", func(t *testing.T) {
			id := newStreamID("conflict")
			require.NoError(t, j.Write(ctx, Records(id, 1, 2)...))

			assert.Error(t, j.Write(ctx, Records(id, 4, 4)...))
			assert.Error(t, j.Write(ctx, Records(id, 2, 3)...))

			highest, err := j.HighestSequenceNr(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), highest)

			require.NoError(t, j.Write(ctx, Records(id, 3, 3)...))
		})

		t.Run("the catalog lists streams in write order", func(t *testing.T) {
			first, second := newStreamID("first"), newStreamID("second")

			require.NoError(t, j.Write(ctx, Records(first, 1, 1)...))
			require.NoError(t, j.Write(ctx, Records(second, 1, 1)...))

			ids, err := j.StreamIDs(ctx)
			require.NoError(t, err)

			i, k := slices.Index(ids, first), slices.Index(ids, second)
			require.NotEqual(t, -1, i)
			require.NotEqual(t, -1, k)
			assert.Less(t, i, k)
		})

		t.Run("the dataset is the exact union of all the partitions", func(t *testing.T) {
			a, b := newStreamID("union-a"), newStreamID("union-b")

			require.NoError(t, j.Write(ctx, append(Records(a, 1, 5), Records(b, 1, 4)...)...))

			session := dataset.Session{
				Planner:       planner(t),
				Scanner:       scan.Scanner{Store: j, Logger: logger.NewTest(t)},
				Serialization: serde.Config{Logger: logger.NewTest(t)},
				Logger:        logger.NewTest(t),
			}

			ds, err := session.Load(ctx, partition.ByIDs{b, a})
			require.NoError(t, err)
			assert.Len(t, ds.Ranges(), 4)

			entries, err := ds.Sorted(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 9)
			assert.Empty(t, dataset.Failures(entries))

			for _, entry := range entries {
				assert.Equal(t, journal.PartitionIndexOf(entry.Key.SequenceNr, Capacity), entry.Key.PartitionIndex)
				assert.Equal(t, map[string]any{"value": float64(entry.Key.SequenceNr)}, entry.Event.Data)
			}
		})

		t.Run("scans fail when the context is canceled", func(t *testing.T) {
			id := newStreamID("canceled")
			require.NoError(t, j.Write(ctx, Records(id, 1, 3)...))

			ctx, cancel := context.WithCancel(ctx)
			cancel()

			r := journal.PartitionRange{StreamID: id, PartitionIndex: 0, From: 1, To: 3, Capacity: Capacity}

			_, err := scan.Scanner{Store: j, Attempts: 1}.Scan(ctx, r)

			var scanErr journal.ScanError
			assert.ErrorAs(t, err, &scanErr)
		})
	}
}
