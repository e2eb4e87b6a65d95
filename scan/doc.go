// Package scan reads the physical partitions of the journal in parallel.
//
// A Scanner issues one range query per PartitionRange against a Store,
// and checks that the records come back in the order guaranteed by the
// physical storage: strictly increasing sequence numbers, with no gaps
// nor duplicates, inside the partition bounds.
//
// Scans of different partitions are independent: they run in any order,
// and no ordering across partitions is imposed or promised.
package scan
