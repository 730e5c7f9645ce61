package stream

import (
	"fmt"
	"time"
)

// LogLag reports how far a consumer group is behind the end of a log.
// Lower is the committed position, Upper the end position.
type LogLag struct {
	Lower int64
	Upper int64
}

// LagOf returns the lag of a group that committed nothing on n records.
func LagOf(n int64) LogLag {
	return LogLag{Upper: n}
}

func LagOfRange(lower, upper int64) LogLag {
	return LogLag{Lower: lower, Upper: upper}
}

// Lag is the number of records not yet committed.
func (l LogLag) Lag() int64 {
	if l.Upper < l.Lower {
		return 0
	}
	return l.Upper - l.Lower
}

func (l LogLag) String() string {
	return fmt.Sprintf("LogLag{lag=%d, lower=%d, upper=%d}", l.Lag(), l.Lower, l.Upper)
}

// SumLag aggregates per partition lags into a single one.
func SumLag(lags []LogLag) LogLag {
	var out LogLag
	for _, l := range lags {
		out.Lower += l.Lower
		out.Upper += l.Upper
	}
	return out
}

// Latency extends a partition lag with the age of the last committed record.
// Key and Timestamp are zero when nothing has been committed yet.
type Latency struct {
	Lag       LogLag
	Timestamp time.Time
	Latency   time.Duration
	Key       string
}

func (l Latency) String() string {
	return fmt.Sprintf("Latency{lag=%d, latency=%s, key=%q}", l.Lag.Lag(), l.Latency, l.Key)
}

// MaxLatency returns the worst latency of the list with the summed lag.
func MaxLatency(latencies []Latency) Latency {
	var out Latency
	lags := make([]LogLag, 0, len(latencies))
	for _, l := range latencies {
		lags = append(lags, l.Lag)
		if l.Latency > out.Latency {
			out.Latency = l.Latency
			out.Timestamp = l.Timestamp
			out.Key = l.Key
		}
	}
	out.Lag = SumLag(lags)
	return out
}
