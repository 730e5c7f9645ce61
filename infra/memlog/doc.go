// Package memlog is the storage engine behind memlog: a registry of named
// logs, each a fixed array of append-only partitions kept in memory.
//
// A partition stores payloads in arrival order and never mutates or drops
// them. Consumer groups read a partition through a Cursor; at most one
// cursor per group may be open on a partition at any time. Each group owns
// an OffsetTracker holding its committed position, which outlives the
// cursor so that a later cursor resumes where the previous one committed.
//
// Append and Size serialize on the partition lock. Offset trackers have
// their own lock, so commits never contend with appends nor with each other.
package memlog
