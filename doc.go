// Package journal contains the data model used to read an event-sourced,
// append-only journal as an analytic source, without having to care about
// how the journal is partitioned in its backing store.
//
// The journal can be accessed in two ways:
//
//   - as a bulk dataset over the entire historical log, using `partition`
//     to plan the physical partitions to read, `scan` to read them in parallel
//     and `dataset` to assemble the results;
//   - as a continuous stream over newly appended events, using `streaming`
//     on top of a commit-log backend (`pulsar`, `redis`).
//
// In both cases raw rows are turned into typed events by `materialize`,
// using the codecs resolved by `serde`.
package journal
