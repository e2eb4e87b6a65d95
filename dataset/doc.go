// Package dataset exposes the whole historical journal as a bulk dataset
// of (EventKey, Event) entries.
//
// A Session plans the partitions to read, and returns a lazy Dataset:
// collecting it scans every partition in parallel, materializes the records
// and unions the results. The union is exact but unordered; use Sorted when
// a total order by key is needed.
package dataset
