package service

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"memlog/infra/metrics"
)

// DefaultPollInterval bounds each sleep of a read waiting for data.
const DefaultPollInterval = 100 * time.Millisecond

type options struct {
	logger  *zap.Logger
	metrics metrics.Collector
	clock   clock.Clock
	poll    time.Duration
}

func defaultOptions() options {
	return options{
		logger:  zap.NewNop(),
		metrics: metrics.Noop{},
		clock:   clock.New(),
		poll:    DefaultPollInterval,
	}
}

// Option configures a LogManager.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCollector reports appends, reads and commits to c.
func WithCollector(c metrics.Collector) Option {
	return func(o *options) {
		if c != nil {
			o.metrics = c
		}
	}
}

// WithClock replaces the wall clock used for read deadlines and latencies.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPollInterval sets how often a blocked read re-checks for data.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}
