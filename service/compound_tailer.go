package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"memlog/domain/stream"
	"memlog/infra/codec"
	"memlog/infra/sequence"
)

/*
CompoundTailer fans in several PartitionTailers of one consumer group.

Reads rotate over the wrapped tailers and give up after one full rotation.
An empty partition never starves the others and a read over empty
partitions always returns.
Records of one partition keep their order; nothing is ordered across
partitions.
*/
type CompoundTailer[M any] struct {
	tailers     []*PartitionTailer[M]
	group       stream.Name
	assignments []stream.LogPartition
	next        *sequence.Sequencer

	closed  atomic.Bool
	onClose func()

	clock clock.Clock
	poll  time.Duration
}

// NewCompoundTailer wraps tailers, which must all read for group.
func NewCompoundTailer[M any](group stream.Name, tailers ...*PartitionTailer[M]) (*CompoundTailer[M], error) {
	o := defaultOptions()
	return newCompoundTailer(group, tailers, o)
}

func newCompoundTailer[M any](group stream.Name, tailers []*PartitionTailer[M], o options) (*CompoundTailer[M], error) {
	assignments := make([]stream.LogPartition, 0, len(tailers))
	for _, t := range tailers {
		if t.Group() != group {
			return nil, errors.Wrapf(stream.ErrGroupMismatch, "tailer of %s in compound of %s", t.Group(), group)
		}
		assignments = append(assignments, t.Assignments()...)
	}
	return &CompoundTailer[M]{
		tailers:     tailers,
		group:       group,
		assignments: assignments,
		next:        sequence.New(0),
		clock:       o.clock,
		poll:        o.poll,
	}, nil
}

func (c *CompoundTailer[M]) Read(ctx context.Context, timeout time.Duration) (*stream.LogRecord[M], error) {
	return pollRead(ctx, c.clock, c.poll, timeout, c.TryRead)
}

// TryRead tries each wrapped tailer at most once. The rotation carries over
// between calls, so consecutive reads visit the partitions in turn.
func (c *CompoundTailer[M]) TryRead() (*stream.LogRecord[M], error) {
	if c.closed.Load() {
		return nil, errors.Wrapf(stream.ErrTailerClosed, "read %v", c.assignments)
	}
	n := len(c.tailers)
	if n == 0 {
		return nil, nil
	}
	for i := 0; i < n; i++ {
		rec, err := c.tailers[c.next.Slot(n)].TryRead()
		if rec != nil || err != nil {
			return rec, err
		}
	}
	return nil, nil
}

// Commit commits every wrapped tailer.
func (c *CompoundTailer[M]) Commit() error {
	return c.each(func(t *PartitionTailer[M]) error { return t.Commit() })
}

func (c *CompoundTailer[M]) CommitPartition(p stream.LogPartition) (stream.LogOffset, error) {
	t, err := c.owner(p)
	if err != nil {
		return stream.LogOffset{}, err
	}
	return t.CommitPartition(p)
}

func (c *CompoundTailer[M]) ToStart() error {
	return c.each(func(t *PartitionTailer[M]) error { return t.ToStart() })
}

func (c *CompoundTailer[M]) ToEnd() error {
	return c.each(func(t *PartitionTailer[M]) error { return t.ToEnd() })
}

func (c *CompoundTailer[M]) ToLastCommitted() error {
	return c.each(func(t *PartitionTailer[M]) error { return t.ToLastCommitted() })
}

func (c *CompoundTailer[M]) Seek(offset stream.LogOffset) error {
	t, err := c.owner(offset.Partition)
	if err != nil {
		return err
	}
	return t.Seek(offset)
}

func (c *CompoundTailer[M]) Reset() error {
	return c.each(func(t *PartitionTailer[M]) error { return t.Reset() })
}

func (c *CompoundTailer[M]) ResetPartition(p stream.LogPartition) error {
	t, err := c.owner(p)
	if err != nil {
		return err
	}
	return t.ResetPartition(p)
}

func (c *CompoundTailer[M]) OffsetForTimestamp(p stream.LogPartition, _ time.Time) (stream.LogOffset, error) {
	return stream.LogOffset{}, errors.Wrapf(stream.ErrUnsupported, "offset for timestamp on %s", p)
}

func (c *CompoundTailer[M]) each(fn func(*PartitionTailer[M]) error) error {
	if c.closed.Load() {
		return errors.Wrapf(stream.ErrTailerClosed, "%v", c.assignments)
	}
	for _, t := range c.tailers {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompoundTailer[M]) owner(p stream.LogPartition) (*PartitionTailer[M], error) {
	if c.closed.Load() {
		return nil, errors.Wrapf(stream.ErrTailerClosed, "%v", c.assignments)
	}
	for _, t := range c.tailers {
		if t.Partition() == p {
			return t, nil
		}
	}
	return nil, errors.Wrapf(stream.ErrUnassignedPartition, "%s not in %v", p, c.assignments)
}

// Assignments returns the partitions of every wrapped tailer, in wrapping order.
func (c *CompoundTailer[M]) Assignments() []stream.LogPartition {
	out := make([]stream.LogPartition, len(c.assignments))
	copy(out, c.assignments)
	return out
}

func (c *CompoundTailer[M]) Group() stream.Name { return c.group }

// Codec returns the codec of the first wrapped tailer, nil when empty.
func (c *CompoundTailer[M]) Codec() codec.Codec[M] {
	if len(c.tailers) == 0 {
		return nil
	}
	return c.tailers[0].Codec()
}

func (c *CompoundTailer[M]) Closed() bool { return c.closed.Load() }

// Close closes every wrapped tailer. It is idempotent.
func (c *CompoundTailer[M]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	for _, t := range c.tailers {
		err = multierr.Append(err, t.Close())
	}
	if c.onClose != nil {
		c.onClose()
	}
	return err
}
