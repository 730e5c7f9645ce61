package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"memlog/domain/stream"
	"memlog/infra/codec"
	"memlog/infra/memlog"
	"memlog/infra/metrics"
)

// Appender writes messages of type M to one log.
// It is safe for concurrent use.
type Appender[M any] struct {
	log      *memlog.Log
	codec    codec.Codec[M]
	encoding memlog.Encoding
	closed   atomic.Bool

	logger  *zap.Logger
	metrics metrics.Collector
}

func newAppender[M any](l *memlog.Log, c codec.Codec[M], o options) *Appender[M] {
	enc := memlog.EncodingCodec
	if codec.IsNoCodec(c) {
		c = codec.NoCodec[M]()
		enc = memlog.EncodingLegacy
	}
	return &Appender[M]{
		log:      l,
		codec:    c,
		encoding: enc,
		logger:   o.logger.With(zap.String("component", "appender"), zap.Stringer("log", l.Name())),
		metrics:  o.metrics,
	}
}

// Append encodes msg and stores it at the end of partition.
func (a *Appender[M]) Append(partition int, msg M) (stream.LogOffset, error) {
	if a.closed.Load() {
		return stream.LogOffset{}, errors.Wrapf(stream.ErrAppenderClosed, "append to %s", a.log.Name())
	}
	p, err := a.log.Partition(partition)
	if err != nil {
		return stream.LogOffset{}, err
	}
	data, err := a.codec.Encode(msg)
	if err != nil {
		return stream.LogOffset{}, errors.Wrapf(err, "encode message for %s", p.LogPartition())
	}
	off := p.Append(memlog.NewPayload(a.encoding, data))
	a.metrics.Appended(a.log.Name().URN(), partition, len(data))
	return stream.OffsetOf(p.LogPartition(), off), nil
}

// AppendKey appends msg to the partition selected by hashing key.
// Messages sharing a key land on the same partition.
func (a *Appender[M]) AppendKey(key string, msg M) (stream.LogOffset, error) {
	return a.Append(a.PartitionFor(key), msg)
}

// PartitionFor returns the partition AppendKey uses for key.
func (a *Appender[M]) PartitionFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(a.log.Size()))
}

// WaitFor blocks until group has committed past offset, the timeout elapses
// or ctx is done. It reports whether the group got there.
func (a *Appender[M]) WaitFor(
	ctx context.Context,
	offset stream.LogOffset,
	group stream.Name,
	timeout time.Duration,
) (bool, error) {
	if offset.Partition.Name != a.log.Name() {
		return false, errors.Wrapf(stream.ErrPartitionMismatch, "%s is not a partition of %s", offset.Partition, a.log.Name())
	}
	p, err := a.log.Partition(offset.Partition.Partition)
	if err != nil {
		return false, err
	}
	return p.Tracker(group).WaitUntil(ctx, timeout, func(committed int64) bool {
		return committed > offset.Offset
	})
}

// Close is idempotent. Stored records stay in the log.
func (a *Appender[M]) Close() error {
	if a.closed.CompareAndSwap(false, true) {
		a.logger.Debug("appender closed")
	}
	return nil
}

func (a *Appender[M]) Closed() bool { return a.closed.Load() }

// Size returns the partition count of the log.
func (a *Appender[M]) Size() int { return a.log.Size() }

func (a *Appender[M]) Name() stream.Name { return a.log.Name() }

func (a *Appender[M]) Codec() codec.Codec[M] { return a.codec }
