// Package stream holds the value types shared by every layer of memlog:
// names, partitions, offsets, records, lag and latency reports, and the
// error codes surfaced by the log engine.
//
// The package is dependency-light and carries no behavior beyond
// construction, comparison and formatting.
package stream
