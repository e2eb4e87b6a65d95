// Package partition computes the physical partitions that must be scanned
// to cover the full event range of one or more logical streams.
//
// Events of a stream are stored in fixed-capacity partitions: the event with
// sequence number n lives in the partition with index (n-1)/capacity.
// The Planner uses an external probe to know the highest committed sequence
// number of each stream, and derives the partitions to scan from it.
package partition
