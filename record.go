package journal

// RawRecord is a single serialized row read from the journal storage.
type RawRecord struct {
	Key          EventKey
	SerializerID int32
	Manifest     string
	Payload      []byte
}

// RecordStream is the write-only channel a storage backend sends
// RawRecords to while scanning a partition.
//
// The sender is responsible for closing the channel once done.
type RecordStream chan<- RawRecord

// Event is a journal entry with its payload decoded.
type Event struct {
	StreamID   string
	SequenceNr uint64
	Manifest   string
	Data       any
}

// Entry pairs an Event with its EventKey.
//
// When the record could not be decoded Err is set and Event holds
// no data: the entry is an error sentinel standing in for the record.
type Entry struct {
	Key   EventKey
	Event Event
	Err   error
}

// Failed returns true if the entry is an error sentinel.
func (e Entry) Failed() bool { return e.Err != nil }
