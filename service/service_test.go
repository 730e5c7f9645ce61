package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"memlog/domain/stream"
	"memlog/infra/codec"
)

const (
	smallTimeout = 50 * time.Millisecond
	defTimeout   = 2 * time.Second
)

var (
	logName = stream.NameOfURN("test/orders")
	group   = stream.NameOfURN("test/defaultTest")
)

type keyValue struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"`
	Watermark time.Time `json:"watermark"`
}

func kv(key string) keyValue { return keyValue{Key: key, Value: []byte("value" + key)} }

func newTestManager(t *testing.T, opts ...Option) *LogManager {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithPollInterval(10 * time.Millisecond),
	}, opts...)
	m := NewLogManager(nil, opts...)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func newTestLog(t *testing.T, m *LogManager, size int) *Appender[keyValue] {
	t.Helper()
	require.NoError(t, m.Create(logName, size))
	a, err := GetAppender[keyValue](m, logName, codec.NoCodec[keyValue]())
	require.NoError(t, err)
	return a
}

func partition(i int) stream.LogPartition { return stream.PartitionOf(logName, i) }

func mustTailer(t *testing.T, m *LogManager, partitions ...stream.LogPartition) LogTailer[keyValue] {
	t.Helper()
	tailer, err := CreateTailer[keyValue](m, group, codec.NoCodec[keyValue](), partitions...)
	require.NoError(t, err)
	return tailer
}

func readKey(t *testing.T, tailer LogTailer[keyValue]) string {
	t.Helper()
	rec, err := tailer.TryRead()
	require.NoError(t, err)
	require.NotNil(t, rec, "expected a record")
	return rec.Message.Key
}
