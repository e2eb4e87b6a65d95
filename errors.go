package journal

import (
	"errors"
	"fmt"
)

// ErrNoBinding is returned when no codec could be found
// for a (serializer id, manifest) pair.
var ErrNoBinding = errors.New("no codec bound to manifest")

// PlanningError is returned when the partitions to scan could not be
// computed, because the stream catalog or the sequence number probe
// are unreachable or returned inconsistent metadata.
//
// A PlanningError is fatal: no scan is started.
type PlanningError struct {
	StreamID string
	Err      error
}

func (err PlanningError) Error() string {
	if err.StreamID == "" {
		return fmt.Sprintf("journal: failed to plan partitions, %v", err.Err)
	}

	return fmt.Sprintf("journal: failed to plan partitions for stream %q, %v", err.StreamID, err.Err)
}

func (err PlanningError) Unwrap() error { return err.Err }

// ScanError is returned when a partition could not be read from
// the journal storage after all the retry attempts have been exhausted.
type ScanError struct {
	Range    PartitionRange
	Attempts uint
	Err      error
}

func (err ScanError) Error() string {
	return fmt.Sprintf("journal: failed to scan partition %s after %d attempt(s), %v", err.Range, err.Attempts, err.Err)
}

func (err ScanError) Unwrap() error { return err.Err }

// DeserializationError is returned when a single record could not be decoded,
// either because no codec is bound to its manifest or because the payload
// is not compatible with the resolved codec.
type DeserializationError struct {
	Key          EventKey
	SerializerID int32
	Manifest     string
	Err          error
}

func (err DeserializationError) Error() string {
	if err.Key == (EventKey{}) {
		return fmt.Sprintf(
			"journal: failed to deserialize manifest %q (serializer %d), %v",
			err.Manifest, err.SerializerID, err.Err,
		)
	}

	return fmt.Sprintf(
		"journal: failed to deserialize record %s with manifest %q (serializer %d), %v",
		err.Key, err.Manifest, err.SerializerID, err.Err,
	)
}

func (err DeserializationError) Unwrap() error { return err.Err }

// ConfigurationError is returned when the serializer configuration
// is malformed, or misses a required binding while in strict mode.
type ConfigurationError struct {
	Manifest string
	Err      error
}

func (err ConfigurationError) Error() string {
	if err.Manifest == "" {
		return fmt.Sprintf("journal: invalid serializer configuration, %v", err.Err)
	}

	return fmt.Sprintf("journal: invalid serializer configuration for manifest %q, %v", err.Manifest, err.Err)
}

func (err ConfigurationError) Unwrap() error { return err.Err }
