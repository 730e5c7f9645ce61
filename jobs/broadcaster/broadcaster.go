// Package broadcaster forwards the records of a memlog to a Kafka topic.
//
// Every record read is journaled in the outbox before it is published, and
// the consumer group is committed once the batch is journaled. A record
// whose publish fails stays in the outbox and is retried on later ticks,
// no sooner than RetryBackoff after its last attempt.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"memlog/domain/stream"
	"memlog/infra/codec"
	"memlog/infra/kafka"
	"memlog/infra/outbox"
	"memlog/service"
)

// DefaultGroup is the consumer group used when Config.Group is zero.
var DefaultGroup = stream.NameOf("memlog", "broadcaster")

// Header keys set on every published message.
const (
	HeaderLog       = "memlog-log"
	HeaderPartition = "memlog-partition"
	HeaderOffset    = "memlog-offset"
)

type Config struct {
	Log          stream.Name
	Group        stream.Name
	Interval     time.Duration
	BatchSize    int
	MaxRetries   uint32
	RetryBackoff time.Duration
}

func (c *Config) withDefaults() {
	if c.Group.IsZero() {
		c.Group = DefaultGroup
	}
	if c.Interval <= 0 {
		c.Interval = 250 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

type Broadcaster struct {
	cfg       Config
	tailer    service.LogTailer[[]byte]
	publisher kafka.Publisher
	outbox    *outbox.Outbox
	clock     clock.Clock
	logger    *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// New tails every partition of cfg.Log. Records are forwarded as stored,
// so the log must be written with a codec; legacy records fail the read.
func New(
	m *service.LogManager,
	cfg Config,
	publisher kafka.Publisher,
	box *outbox.Outbox,
	logger *zap.Logger,
) (*Broadcaster, error) {
	cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	tailer, err := service.CreateLogTailer[[]byte](m, cfg.Group, cfg.Log, codec.Raw{})
	if err != nil {
		return nil, errors.Wrapf(err, "tail %s", cfg.Log)
	}
	return &Broadcaster{
		cfg:       cfg,
		tailer:    tailer,
		publisher: publisher,
		outbox:    box,
		clock:     clock.New(),
		logger: logger.With(
			zap.String("component", "broadcaster"),
			zap.Stringer("log", cfg.Log),
			zap.String("topic", publisher.Topic()),
		),
	}, nil
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run ticks until ctx is done. Tick errors are logged, except a record the
// broadcaster can never forward, which stops Run with that error.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("broadcaster started", zap.Duration("interval", b.cfg.Interval))
	ticker := b.clock.Ticker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster stopped")
			return nil
		case <-ticker.C:
			err := b.Tick(ctx)
			switch {
			case err == nil || ctx.Err() != nil:
			case errors.Is(err, stream.ErrEncodingMismatch):
				b.logger.Error("broadcaster stopped on undeliverable record", zap.Error(err))
				return err
			default:
				b.logger.Error("broadcast tick failed", zap.Error(err))
			}
		}
	}
}

// Tick retries pending outbox entries, forwards up to BatchSize new
// records, then drops acknowledged entries.
func (b *Broadcaster) Tick(ctx context.Context) error {
	if err := b.retry(ctx); err != nil {
		return err
	}
	n, err := b.drain(ctx)
	if err != nil {
		return err
	}
	pruned, err := b.outbox.PruneAcked()
	if err != nil {
		return err
	}
	if n > 0 || pruned > 0 {
		b.logger.Debug("broadcast tick", zap.Int("read", n), zap.Int("pruned", pruned))
	}
	return nil
}

func (b *Broadcaster) retry(ctx context.Context) error {
	now := b.clock.Now()
	return b.outbox.ScanPending(func(e outbox.Entry) error {
		if e.Retries >= b.cfg.MaxRetries {
			return nil
		}
		if e.State == outbox.StateFailed && now.Before(time.Unix(0, e.LastAttempt).Add(b.cfg.RetryBackoff)) {
			return nil
		}
		return b.publish(ctx, e.Key, e.Payload)
	})
}

// drain commits the records it journaled even when a read fails, so a
// record that cannot be read does not hold back the ones before it.
func (b *Broadcaster) drain(ctx context.Context) (int, error) {
	n := 0
	var readErr error
	for n < b.cfg.BatchSize {
		rec, err := b.tailer.TryRead()
		if err != nil {
			readErr = errors.Wrapf(err, "read %s for %s", b.cfg.Log, b.cfg.Group)
			break
		}
		if rec == nil {
			break
		}
		n++
		// 1️⃣ journal before the commit can move past the record
		key, err := b.outbox.PutNew(rec.Offset, rec.Message)
		if err != nil {
			return n, err
		}
		if err := b.publish(ctx, key, rec.Message); err != nil {
			return n, err
		}
	}
	if n > 0 {
		if err := b.tailer.Commit(); err != nil {
			return n, err
		}
	}
	return n, readErr
}

// publish returns an error only when the outbox cannot be updated.
// A failed send is journaled and left for retry.
func (b *Broadcaster) publish(ctx context.Context, key outbox.Key, payload []byte) error {
	// 2️⃣ mark SENT
	if err := b.outbox.MarkSent(key); err != nil {
		return err
	}
	// 3️⃣ publish
	if err := b.publisher.Publish(ctx, messageFor(key.Offset, payload)); err != nil {
		b.logger.Warn("publish failed", zap.Stringer("entry", key), zap.Error(err))
		return b.outbox.MarkFailed(key)
	}
	// 4️⃣ mark ACKED
	return b.outbox.MarkAcked(key)
}

func messageFor(offset stream.LogOffset, payload []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(offset.Partition.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderLog, Value: []byte(offset.Partition.Name.URN())},
			{Key: HeaderPartition, Value: []byte(strconv.Itoa(offset.Partition.Partition))},
			{Key: HeaderOffset, Value: []byte(strconv.FormatInt(offset.Offset, 10))},
		},
	}
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

// Close releases the tailer and the publisher. The outbox belongs to the caller.
func (b *Broadcaster) Close() error {
	return multierr.Combine(b.tailer.Close(), b.publisher.Close())
}
