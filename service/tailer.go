package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"memlog/domain/stream"
	"memlog/infra/codec"
	"memlog/infra/memlog"
	"memlog/infra/metrics"
)

// LogTailer reads records of type M for one consumer group.
// A LogTailer is not safe for concurrent use; use one per goroutine.
type LogTailer[M any] interface {
	// Read returns the next record, waiting up to timeout for one to be
	// appended. A nil record with a nil error means nothing arrived.
	Read(ctx context.Context, timeout time.Duration) (*stream.LogRecord[M], error)
	// TryRead returns the next record or nil without waiting.
	TryRead() (*stream.LogRecord[M], error)

	// Commit saves the read position of every assigned partition.
	Commit() error
	// CommitPartition saves the read position of one assigned partition.
	CommitPartition(p stream.LogPartition) (stream.LogOffset, error)

	ToStart() error
	ToEnd() error
	ToLastCommitted() error
	// Seek positions the tailer so that the next read returns offset.
	Seek(offset stream.LogOffset) error
	// Reset rewinds every assigned partition and commits the rewind.
	Reset() error
	ResetPartition(p stream.LogPartition) error
	OffsetForTimestamp(p stream.LogPartition, ts time.Time) (stream.LogOffset, error)

	Assignments() []stream.LogPartition
	Group() stream.Name
	Codec() codec.Codec[M]
	Closed() bool
	Close() error
}

var (
	_ LogTailer[string] = (*PartitionTailer[string])(nil)
	_ LogTailer[string] = (*CompoundTailer[string])(nil)
)

// PartitionTailer reads a single partition.
//
// Until it is explicitly positioned, the first read starts from the group's
// last committed offset.
type PartitionTailer[M any] struct {
	cursor    *memlog.Cursor
	partition stream.LogPartition
	group     stream.Name
	codec     codec.Codec[M]
	encoding  memlog.Encoding

	initialized bool
	closed      atomic.Bool
	onClose     func()

	clock   clock.Clock
	poll    time.Duration
	logger  *zap.Logger
	metrics metrics.Collector
}

func newPartitionTailer[M any](
	p *memlog.Partition,
	group stream.Name,
	c codec.Codec[M],
	o options,
) (*PartitionTailer[M], error) {
	cursor, err := p.CreateTailer(group)
	if err != nil {
		return nil, err
	}
	enc := memlog.EncodingCodec
	if codec.IsNoCodec(c) {
		c = codec.NoCodec[M]()
		enc = memlog.EncodingLegacy
	}
	lp := p.LogPartition()
	return &PartitionTailer[M]{
		cursor:    cursor,
		partition: lp,
		group:     group,
		codec:     c,
		encoding:  enc,
		clock:     o.clock,
		poll:      o.poll,
		logger: o.logger.With(
			zap.String("component", "tailer"),
			zap.Stringer("partition", lp),
			zap.Stringer("group", group),
		),
		metrics: o.metrics,
	}, nil
}

// ──────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────

func (t *PartitionTailer[M]) Read(ctx context.Context, timeout time.Duration) (*stream.LogRecord[M], error) {
	return pollRead(ctx, t.clock, t.poll, timeout, t.TryRead)
}

func (t *PartitionTailer[M]) TryRead() (*stream.LogRecord[M], error) {
	if t.closed.Load() {
		return nil, errors.Wrapf(stream.ErrTailerClosed, "read %s", t.partition)
	}
	if !t.initialized {
		t.toLastCommitted()
	}
	data, off, ok, err := t.cursor.Read(t.encoding)
	if err != nil {
		t.metrics.ReadError(t.partition.Name.URN(), t.group.URN(), stream.ErrorCode(err))
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	msg, err := t.codec.Decode(data)
	if err != nil {
		t.metrics.ReadError(t.partition.Name.URN(), t.group.URN(), stream.ECorrupt)
		return nil, errors.Wrapf(err, "decode %s at offset %d with %s codec", t.partition, off, t.codec.Name())
	}
	t.metrics.Read(t.partition.Name.URN(), t.group.URN())
	return &stream.LogRecord[M]{Message: msg, Offset: stream.OffsetOf(t.partition, off)}, nil
}

// pollRead calls try until it yields a record or an error, sleeping at most
// interval between attempts, until timeout elapses or ctx is done.
func pollRead[M any](
	ctx context.Context,
	clk clock.Clock,
	interval time.Duration,
	timeout time.Duration,
	try func() (*stream.LogRecord[M], error),
) (*stream.LogRecord[M], error) {
	rec, err := try()
	if rec != nil || err != nil || timeout <= 0 {
		return rec, err
	}
	deadline := clk.Now().Add(timeout)
	for {
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return nil, nil
		}
		timer := clk.Timer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if rec, err = try(); rec != nil || err != nil {
			return rec, err
		}
	}
}

// ──────────────────────────────────────────────────────────
// Commits
// ──────────────────────────────────────────────────────────

func (t *PartitionTailer[M]) Commit() error {
	_, err := t.CommitPartition(t.partition)
	return err
}

// CommitPartition saves the current read position as the group's committed
// offset. p must be the tailer's partition.
func (t *PartitionTailer[M]) CommitPartition(p stream.LogPartition) (stream.LogOffset, error) {
	if err := t.check(p); err != nil {
		return stream.LogOffset{}, err
	}
	off := t.cursor.Offset()
	t.cursor.Commit(off)
	t.metrics.Committed(t.partition.Name.URN(), t.group.URN(), t.partition.Partition, off)
	t.metrics.Lag(t.partition.Name.URN(), t.group.URN(), t.partition.Partition, t.cursor.Partition().Size()-off)
	return stream.OffsetOf(t.partition, off), nil
}

// ──────────────────────────────────────────────────────────
// Positioning
// ──────────────────────────────────────────────────────────

func (t *PartitionTailer[M]) ToStart() error {
	if err := t.check(t.partition); err != nil {
		return err
	}
	t.cursor.ToStart()
	t.initialized = true
	return nil
}

func (t *PartitionTailer[M]) ToEnd() error {
	if err := t.check(t.partition); err != nil {
		return err
	}
	t.cursor.ToEnd()
	t.initialized = true
	return nil
}

func (t *PartitionTailer[M]) ToLastCommitted() error {
	if err := t.check(t.partition); err != nil {
		return err
	}
	t.toLastCommitted()
	return nil
}

func (t *PartitionTailer[M]) toLastCommitted() {
	committed := t.cursor.Committed()
	if !t.cursor.MoveTo(committed) {
		t.logger.Warn("committed offset beyond partition end", zap.Int64("committed", committed))
		t.cursor.ToEnd()
	}
	t.initialized = true
}

// Seek moves to offset, which must lie in [0, size] of the tailer's partition.
func (t *PartitionTailer[M]) Seek(offset stream.LogOffset) error {
	if err := t.check(offset.Partition); err != nil {
		return err
	}
	if !t.cursor.MoveTo(offset.Offset) {
		if t.cursor.Offset() != offset.Offset {
			return errors.Wrapf(stream.ErrSeekOutOfRange, "seek %s", offset)
		}
		t.logger.Warn("rejected seek accepted because cursor already at target", zap.Stringer("offset", offset))
	}
	t.initialized = true
	return nil
}

func (t *PartitionTailer[M]) Reset() error {
	return t.ResetPartition(t.partition)
}

// ResetPartition rewinds to offset 0 and commits it, so the whole group
// starts over.
func (t *PartitionTailer[M]) ResetPartition(p stream.LogPartition) error {
	if err := t.check(p); err != nil {
		return err
	}
	t.cursor.ToStart()
	t.initialized = true
	_, err := t.CommitPartition(p)
	return err
}

// OffsetForTimestamp always fails: records carry no append time.
func (t *PartitionTailer[M]) OffsetForTimestamp(p stream.LogPartition, _ time.Time) (stream.LogOffset, error) {
	return stream.LogOffset{}, errors.Wrapf(stream.ErrUnsupported, "offset for timestamp on %s", p)
}

func (t *PartitionTailer[M]) check(p stream.LogPartition) error {
	if t.closed.Load() {
		return errors.Wrapf(stream.ErrTailerClosed, "%s", t.partition)
	}
	if p != t.partition {
		return errors.Wrapf(stream.ErrPartitionMismatch, "tailer on %s got %s", t.partition, p)
	}
	return nil
}

// ──────────────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────────────

func (t *PartitionTailer[M]) Assignments() []stream.LogPartition {
	return []stream.LogPartition{t.partition}
}

func (t *PartitionTailer[M]) Partition() stream.LogPartition { return t.partition }

func (t *PartitionTailer[M]) Group() stream.Name { return t.group }

func (t *PartitionTailer[M]) Codec() codec.Codec[M] { return t.codec }

func (t *PartitionTailer[M]) Closed() bool { return t.closed.Load() }

// Close releases the group's slot on the partition. It is idempotent.
func (t *PartitionTailer[M]) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cursor.Close()
	if t.onClose != nil {
		t.onClose()
	}
	t.logger.Debug("tailer closed")
	return nil
}
