package journal

import (
	"errors"
	"fmt"
)

// ErrInvalidWrite is returned when the records written to a stream
// are not contiguous, or start from sequence number 0.
var ErrInvalidWrite = errors.New("journal: invalid write")

// SequenceConflictError is returned by journal writers when the records
// of a stream do not continue it from its highest committed sequence number.
type SequenceConflictError struct {
	StreamID string

	// Expected is the highest sequence number the write expected to follow.
	Expected uint64

	// Actual is the highest committed sequence number of the stream.
	Actual uint64
}

func (err SequenceConflictError) Error() string {
	return fmt.Sprintf(
		"journal: conflict on stream %q, expected highest sequence number %d, got %d",
		err.StreamID, err.Expected, err.Actual,
	)
}

// StreamWrite is the contiguous run of records written to a single stream.
type StreamWrite struct {
	StreamID string
	Records  []RawRecord
}

// First returns the sequence number of the first record written.
func (w StreamWrite) First() uint64 { return w.Records[0].Key.SequenceNr }

// Last returns the sequence number of the last record written.
func (w StreamWrite) Last() uint64 { return w.Records[len(w.Records)-1].Key.SequenceNr }

// GroupByStream groups the records by stream id, in order of first appearance,
// checking the records of each stream have contiguous sequence numbers.
func GroupByStream(records []RawRecord) ([]StreamWrite, error) {
	var (
		writes []StreamWrite
		index  = make(map[string]int)
	)

	for _, record := range records {
		if record.Key.SequenceNr == 0 {
			return nil, fmt.Errorf("%w, sequence number 0 for stream %q", ErrInvalidWrite, record.Key.StreamID)
		}

		i, ok := index[record.Key.StreamID]
		if !ok {
			i = len(writes)
			index[record.Key.StreamID] = i
			writes = append(writes, StreamWrite{StreamID: record.Key.StreamID})
		}

		w := &writes[i]
		if n := len(w.Records); n > 0 && record.Key.SequenceNr != w.Records[n-1].Key.SequenceNr+1 {
			return nil, fmt.Errorf(
				"%w, sequence number %d follows %d for stream %q",
				ErrInvalidWrite, record.Key.SequenceNr, w.Records[n-1].Key.SequenceNr, w.StreamID,
			)
		}

		w.Records = append(w.Records, record)
	}

	return writes, nil
}
