// Package streaming exposes the events newly appended to the journal
// as a continuous sequence of micro-batches, read from a commit-log.
//
// Offset tracking is delegated to the commit-log Broker: the package keeps
// no offset store of its own. Events of the same stream are delivered in
// sequence number order only if the producers route every stream id
// to a single topic partition.
package streaming
