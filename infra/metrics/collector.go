// Package metrics exposes counters for memlog activity.
package metrics

// Collector receives memlog events. Implementations must be safe for
// concurrent use.
type Collector interface {
	// Appended counts one record appended to a log partition.
	Appended(log string, partition int, size int)
	// Read counts one record delivered to a consumer group.
	Read(log, group string)
	// ReadError counts a read that failed, by error code.
	ReadError(log, group, code string)
	// Committed counts a commit and records the committed offset.
	Committed(log, group string, partition int, offset int64)
	// Lag records the lag of a group on a partition.
	Lag(log, group string, partition int, lag int64)
}

var _ Collector = Noop{}

// Noop discards every event.
type Noop struct{}

func (Noop) Appended(string, int, int) {}
func (Noop) Read(string, string) {}
func (Noop) ReadError(string, string, string) {}
func (Noop) Committed(string, string, int, int64) {}
func (Noop) Lag(string, string, int, int64) {}
