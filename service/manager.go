package service

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"memlog/domain/stream"
	"memlog/infra/codec"
	"memlog/infra/memlog"
)

// RebalanceListener is notified of partition ownership changes by brokers
// that rebalance consumer groups. The in-memory log never calls it.
type RebalanceListener interface {
	OnPartitionsRevoked([]stream.LogPartition)
	OnPartitionsAssigned([]stream.LogPartition)
}

type cachedAppender struct {
	codec    string
	appender io.Closer
}

/*
LogManager is the entry point to the in-memory log.

It creates and deletes logs in its Registry, hands out appenders and
tailers, and answers lag queries. Appenders are cached per log, so every
producer of a log shares the codec of the first one. Closing the manager
closes every appender and tailer it handed out; the logs stay in the
registry.
*/
type LogManager struct {
	registry *memlog.Registry
	opts     options
	logger   *zap.Logger

	mu        sync.Mutex
	appenders map[stream.Name]cachedAppender
	tailers   map[io.Closer]struct{}
}

// NewLogManager serves the logs of registry. A nil registry gets a fresh one.
func NewLogManager(registry *memlog.Registry, opts ...Option) *LogManager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if registry == nil {
		registry = memlog.NewRegistry(o.logger)
	}
	return &LogManager{
		registry:  registry,
		opts:      o,
		logger:    o.logger.With(zap.String("component", "log_manager")),
		appenders: make(map[stream.Name]cachedAppender),
		tailers:   make(map[io.Closer]struct{}),
	}
}

func (m *LogManager) Registry() *memlog.Registry { return m.registry }

// ──────────────────────────────────────────────────────────
// Logs
// ──────────────────────────────────────────────────────────

// Create adds a log of size partitions, size in [1, 100].
func (m *LogManager) Create(name stream.Name, size int) error {
	_, err := m.registry.Create(name, size)
	return err
}

// CreateIfNotExists creates the log unless it exists and reports whether it did.
// The size of an existing log is left unchanged.
func (m *LogManager) CreateIfNotExists(name stream.Name, size int) (bool, error) {
	if m.registry.Exists(name) {
		return false, nil
	}
	if _, err := m.registry.Create(name, size); err != nil {
		if errors.Is(err, stream.ErrLogExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *LogManager) Exists(name stream.Name) bool { return m.registry.Exists(name) }

// Size returns the partition count of the log.
func (m *LogManager) Size(name stream.Name) (int, error) {
	l, err := m.registry.Get(name)
	if err != nil {
		return 0, err
	}
	return l.Size(), nil
}

// Delete drops the log with its records and offsets, closing its cached
// appender. It reports whether the log existed.
func (m *LogManager) Delete(name stream.Name) bool {
	m.mu.Lock()
	cached, ok := m.appenders[name]
	delete(m.appenders, name)
	m.mu.Unlock()
	if ok {
		_ = cached.appender.Close()
	}
	return m.registry.Delete(name)
}

// ListAll returns the names of every log, sorted.
func (m *LogManager) ListAll() []stream.Name { return m.registry.Names() }

// ListConsumerGroups returns the groups that tailed or waited on the log.
func (m *LogManager) ListConsumerGroups(name stream.Name) ([]stream.Name, error) {
	l, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return l.Groups(), nil
}

// GetLag sums the lag of group over every partition of the log.
func (m *LogManager) GetLag(name stream.Name, group stream.Name) (stream.LogLag, error) {
	lags, err := m.GetLagPerPartition(name, group)
	if err != nil {
		return stream.LogLag{}, err
	}
	return stream.SumLag(lags), nil
}

// GetLagPerPartition returns (committed, end) of group on each partition.
func (m *LogManager) GetLagPerPartition(name stream.Name, group stream.Name) ([]stream.LogLag, error) {
	l, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	lags := l.Lag(group)
	for i, lag := range lags {
		m.opts.metrics.Lag(name.URN(), group.URN(), i, lag.Lag())
	}
	return lags, nil
}

// Subscribe always fails. Partitions of an in-memory log are assigned
// explicitly through CreateTailer.
func (m *LogManager) Subscribe(group stream.Name, names []stream.Name, _ RebalanceListener) error {
	return errors.Wrapf(stream.ErrUnsupported, "subscribe %s to %v", group, names)
}

// Close closes every appender and tailer handed out by the manager.
func (m *LogManager) Close() error {
	m.mu.Lock()
	closers := make([]io.Closer, 0, len(m.appenders)+len(m.tailers))
	for _, a := range m.appenders {
		closers = append(closers, a.appender)
	}
	for t := range m.tailers {
		closers = append(closers, t)
	}
	m.appenders = make(map[stream.Name]cachedAppender)
	m.tailers = make(map[io.Closer]struct{})
	m.mu.Unlock()

	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	m.logger.Debug("log manager closed", zap.Int("handles", len(closers)))
	return err
}

func (m *LogManager) track(c io.Closer) func() {
	m.mu.Lock()
	m.tailers[c] = struct{}{}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.tailers, c)
		m.mu.Unlock()
	}
}

// ──────────────────────────────────────────────────────────
// Appenders and tailers
// ──────────────────────────────────────────────────────────

func codecName[M any](c codec.Codec[M]) string {
	if codec.IsNoCodec(c) {
		return codec.NameNone
	}
	return c.Name()
}

func closed(c io.Closer) bool {
	cc, ok := c.(interface{ Closed() bool })
	return ok && cc.Closed()
}

// GetAppender returns the appender of the log, creating it on first use.
// Asking again with a codec of another name fails with ErrCodecMismatch
// until the cached appender is closed.
func GetAppender[M any](m *LogManager, name stream.Name, c codec.Codec[M]) (*Appender[M], error) {
	want := codecName(c)

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.appenders[name]; ok && !closed(cached.appender) {
		a, typed := cached.appender.(*Appender[M])
		if cached.codec != want || !typed {
			return nil, errors.Wrapf(stream.ErrCodecMismatch, "%s uses %s, asked for %s", name, cached.codec, want)
		}
		return a, nil
	}
	l, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	a := newAppender(l, c, m.opts)
	m.appenders[name] = cachedAppender{codec: want, appender: a}
	return a, nil
}

// CreateTailer opens a tailer of group on partitions. A single partition
// yields a *PartitionTailer, anything else a *CompoundTailer. On error no
// partition is left held by the group.
func CreateTailer[M any](
	m *LogManager,
	group stream.Name,
	c codec.Codec[M],
	partitions ...stream.LogPartition,
) (LogTailer[M], error) {
	tailers := make([]*PartitionTailer[M], 0, len(partitions))
	release := func() {
		for _, t := range tailers {
			_ = t.Close()
		}
	}
	for _, lp := range partitions {
		l, err := m.registry.Get(lp.Name)
		if err != nil {
			release()
			return nil, err
		}
		p, err := l.Partition(lp.Partition)
		if err != nil {
			release()
			return nil, err
		}
		t, err := newPartitionTailer(p, group, c, m.opts)
		if err != nil {
			release()
			return nil, err
		}
		tailers = append(tailers, t)
	}

	if len(tailers) == 1 {
		t := tailers[0]
		t.onClose = m.track(t)
		return t, nil
	}
	ct, err := newCompoundTailer(group, tailers, m.opts)
	if err != nil {
		release()
		return nil, err
	}
	ct.onClose = m.track(ct)
	return ct, nil
}

// CreateLogTailer opens a tailer of group on every partition of the log.
func CreateLogTailer[M any](m *LogManager, group stream.Name, name stream.Name, c codec.Codec[M]) (LogTailer[M], error) {
	l, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	partitions := make([]stream.LogPartition, 0, l.Size())
	for _, p := range l.Partitions() {
		partitions = append(partitions, p.LogPartition())
	}
	return CreateTailer(m, group, c, partitions...)
}
