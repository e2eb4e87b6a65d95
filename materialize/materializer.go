// Package materialize turns raw journal records into typed events,
// using the codecs resolved by a serde.Resolver.
package materialize

import (
	"errors"

	"github.com/get-eventually/go-journal"
	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/serde"
)

// Materializer decodes RawRecords into Events.
//
// A Materializer is stateless, besides the resolution cache of its Resolver.
// Whether decoding failures are fatal depends on the Resolver strict mode.
type Materializer struct {
	Resolver *serde.Resolver
	Logger   logger.Logger
}

// New returns a Materializer using a Resolver built from the configuration.
func New(cfg serde.Config) (Materializer, error) {
	resolver, err := serde.NewResolver(cfg)
	if err != nil {
		return Materializer{}, err
	}

	return Materializer{Resolver: resolver, Logger: cfg.Logger}, nil
}

func (m Materializer) decode(record journal.RawRecord) (journal.Event, error) {
	decode, err := m.Resolver.Resolve(record.SerializerID, record.Manifest)
	if err != nil {
		return journal.Event{}, withKey(err, record)
	}

	data, err := decode(record.Payload)
	if err != nil {
		return journal.Event{}, withKey(err, record)
	}

	return journal.Event{
		StreamID:   record.Key.StreamID,
		SequenceNr: record.Key.SequenceNr,
		Manifest:   record.Manifest,
		Data:       data,
	}, nil
}

// withKey attaches the record key to deserialization errors.
func withKey(err error, record journal.RawRecord) error {
	var deserializationErr journal.DeserializationError
	if errors.As(err, &deserializationErr) {
		deserializationErr.Key = record.Key
		return deserializationErr
	}

	var configErr journal.ConfigurationError
	if errors.As(err, &configErr) {
		return configErr
	}

	return journal.DeserializationError{
		Key:          record.Key,
		SerializerID: record.SerializerID,
		Manifest:     record.Manifest,
		Err:          err,
	}
}

// Batch materializes a record into a (key, event) entry.
//
// When the record cannot be decoded, the returned entry is an error sentinel
// carrying the journal.DeserializationError, and no error is returned.
// In strict mode the failure is returned as an error instead.
func (m Materializer) Batch(record journal.RawRecord) (journal.Entry, error) {
	evt, err := m.decode(record)
	if err != nil && m.Resolver.Strict() {
		return journal.Entry{}, err
	}

	return journal.Entry{Key: record.Key, Event: evt, Err: err}, nil
}

// Stream materializes a record into an event.
//
// When the record cannot be decoded, it is dropped with a warning and
// ok is false. In strict mode the failure is returned as an error instead.
func (m Materializer) Stream(record journal.RawRecord) (evt journal.Event, ok bool, err error) {
	evt, err = m.decode(record)
	if err == nil {
		return evt, true, nil
	}

	if m.Resolver.Strict() {
		return journal.Event{}, false, err
	}

	logger.Warn(m.Logger, "Dropping record that could not be deserialized",
		logger.With("key", record.Key.String()),
		logger.With("manifest", record.Manifest),
		logger.With("serializer_id", record.SerializerID),
		logger.Err(err),
	)

	return journal.Event{}, false, nil
}
