package streaming

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/get-eventually/go-journal"
)

// Names of the message properties carrying the record metadata
// on the commit-log. The message key is the stream id.
const (
	SequenceNrProperty   = "sequence_nr"
	SerializerIDProperty = "serializer_id"
	ManifestProperty     = "manifest"
)

// ErrMalformedMessage is returned when a commit-log message does not
// carry the properties of a journal record.
var ErrMalformedMessage = errors.New("streaming: malformed message")

// Properties returns the message properties describing the record.
func Properties(record journal.RawRecord) map[string]string {
	return map[string]string{
		SequenceNrProperty:   strconv.FormatUint(record.Key.SequenceNr, 10),
		SerializerIDProperty: strconv.FormatInt(int64(record.SerializerID), 10),
		ManifestProperty:     record.Manifest,
	}
}

// Record rebuilds the record carried by a commit-log message
// from its key, properties and payload.
//
// The partition index is not part of the message, and is left to 0.
func Record(key string, properties map[string]string, payload []byte) (journal.RawRecord, error) {
	if key == "" {
		return journal.RawRecord{}, fmt.Errorf("%w, missing key", ErrMalformedMessage)
	}

	sequenceNr, err := strconv.ParseUint(properties[SequenceNrProperty], 10, 64)
	if err != nil || sequenceNr == 0 {
		return journal.RawRecord{}, fmt.Errorf("%w, invalid %s %q", ErrMalformedMessage, SequenceNrProperty, properties[SequenceNrProperty])
	}

	serializerID, err := strconv.ParseInt(properties[SerializerIDProperty], 10, 32)
	if err != nil {
		return journal.RawRecord{}, fmt.Errorf("%w, invalid %s %q", ErrMalformedMessage, SerializerIDProperty, properties[SerializerIDProperty])
	}

	return journal.RawRecord{
		Key:          journal.EventKey{StreamID: key, SequenceNr: sequenceNr},
		SerializerID: int32(serializerID),
		Manifest:     properties[ManifestProperty],
		Payload:      payload,
	}, nil
}

// PartitionOf returns the topic partition a stream id is routed to.
// Producers must route every stream id to a single partition for its
// events to be consumed in order.
func PartitionOf(streamID string, partitions int) int32 {
	if partitions <= 1 {
		return 0
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(streamID))

	return int32(h.Sum32() % uint32(partitions)) //nolint:gosec // The number of partitions is small.
}
