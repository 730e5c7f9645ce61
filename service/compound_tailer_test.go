package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlog/domain/stream"
	"memlog/infra/codec"
)

func TestCompoundScenarioOrders(t *testing.T) {
	m := newTestManager(t)
	a := newTestLog(t, m, 3)
	_, err := a.Append(0, kv("a"))
	require.NoError(t, err)
	_, err = a.Append(1, kv("b"))
	require.NoError(t, err)

	tailer, err := CreateLogTailer[keyValue](m, group, logName, codec.NoCodec[keyValue]())
	require.NoError(t, err)
	require.IsType(t, &CompoundTailer[keyValue]{}, tailer)

	rec, err := tailer.TryRead()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "a", rec.Message.Key)
	assert.Equal(t, partition(0), rec.Offset.Partition)

	rec, err = tailer.TryRead()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "b", rec.Message.Key)
	assert.Equal(t, partition(1), rec.Offset.Partition)

	rec, err = tailer.TryRead()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCompoundRoundRobinFairness(t *testing.T) {
	const n = 4
	m := newTestManager(t)
	a := newTestLog(t, m, n)
	for i := 0; i < n; i++ {
		_, err := a.Append(i, kv(fmt.Sprintf("id%d", i)))
		require.NoError(t, err)
	}

	tailer, err := CreateLogTailer[keyValue](m, group, logName, codec.NoCodec[keyValue]())
	require.NoError(t, err)

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		rec, err := tailer.TryRead()
		require.NoError(t, err)
		require.NotNil(t, rec)
		seen[rec.Offset.Partition.Partition] = true
	}
	assert.Len(t, seen, n)

	rec, err := tailer.TryRead()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCompoundDoesNotStarvePartitions(t *testing.T) {
	m := newTestManager(t)
	a := newTestLog(t, m, 2)
	for i := 0; i < 10; i++ {
		_, err := a.Append(0, kv(fmt.Sprintf("busy%d", i)))
		require.NoError(t, err)
	}
	_, err := a.Append(1, kv("quiet"))
	require.NoError(t, err)

	tailer, err := CreateLogTailer[keyValue](m, group, logName, codec.NoCodec[keyValue]())
	require.NoError(t, err)

	found := false
	for i := 0; i < 2; i++ {
		if readKey(t, tailer) == "quiet" {
			found = true
		}
	}
	assert.True(t, found, "partition 1 served within one rotation")
}

func TestCompoundEmpty(t *testing.T) {
	tailer, err := NewCompoundTailer[keyValue](group)
	require.NoError(t, err)

	rec, err := tailer.TryRead()
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Nil(t, tailer.Codec())
	assert.Empty(t, tailer.Assignments())
	require.NoError(t, tailer.Commit())
}

func TestCompoundRejectsMixedGroups(t *testing.T) {
	m := newTestManager(t)
	newTestLog(t, m, 2)
	l, err := m.Registry().Get(logName)
	require.NoError(t, err)
	p0, _ := l.Partition(0)
	p1, _ := l.Partition(1)

	t0, err := newPartitionTailer[keyValue](p0, group, nil, m.opts)
	require.NoError(t, err)
	t1, err := newPartitionTailer[keyValue](p1, stream.NameOfURN("test/other"), nil, m.opts)
	require.NoError(t, err)

	_, err = NewCompoundTailer(group, t0, t1)
	require.ErrorIs(t, err, stream.ErrGroupMismatch)
}

func TestCompoundCommitAll(t *testing.T) {
	m := newTestManager(t)
	a := newTestLog(t, m, 3)
	for i := 0; i < 3; i++ {
		_, err := a.Append(i, kv("x"))
		require.NoError(t, err)
		_, err = a.Append(i, kv("y"))
		require.NoError(t, err)
	}

	tailer, err := CreateLogTailer[keyValue](m, group, logName, codec.NoCodec[keyValue]())
	require.NoError(t, err)
	for {
		rec, err := tailer.Read(context.Background(), smallTimeout)
		require.NoError(t, err)
		if rec == nil {
			break
		}
	}
	require.NoError(t, tailer.Commit())

	lag, err := m.GetLag(logName, group)
	require.NoError(t, err)
	assert.Equal(t, int64(0), lag.Lag())
	assert.Equal(t, int64(6), lag.Upper)
}

func TestCompoundDispatch(t *testing.T) {
	m := newTestManager(t)
	a := newTestLog(t, m, 3)
	for i := 0; i < 3; i++ {
		_, err := a.Append(1, kv(fmt.Sprintf("id%d", i)))
		require.NoError(t, err)
	}

	tailer := mustTailer(t, m, partition(0), partition(1))
	assert.Equal(t, []stream.LogPartition{partition(0), partition(1)}, tailer.Assignments())

	require.NoError(t, tailer.Seek(stream.OffsetOf(partition(1), 2)))
	assert.Equal(t, "id2", readKey(t, tailer))

	off, err := tailer.CommitPartition(partition(1))
	require.NoError(t, err)
	assert.Equal(t, stream.OffsetOf(partition(1), 3), off)

	err = tailer.Seek(stream.OffsetOf(partition(2), 0))
	require.ErrorIs(t, err, stream.ErrUnassignedPartition)
	assert.Equal(t, stream.EState, stream.ErrorCode(err))

	require.ErrorIs(t, tailer.ResetPartition(partition(2)), stream.ErrUnassignedPartition)
	_, err = tailer.CommitPartition(partition(2))
	require.ErrorIs(t, err, stream.ErrUnassignedPartition)

	require.NoError(t, tailer.ResetPartition(partition(1)))
	lags, err := m.GetLagPerPartition(logName, group)
	require.NoError(t, err)
	assert.Equal(t, int64(3), lags[1].Lag())
}

func TestCompoundBroadcastPositioning(t *testing.T) {
	m := newTestManager(t)
	a := newTestLog(t, m, 2)
	for i := 0; i < 2; i++ {
		_, err := a.Append(i, kv("x"))
		require.NoError(t, err)
	}

	tailer := mustTailer(t, m, partition(0), partition(1))
	require.NoError(t, tailer.ToEnd())
	rec, err := tailer.TryRead()
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, tailer.ToStart())
	readKey(t, tailer)
	readKey(t, tailer)
	require.NoError(t, tailer.Commit())

	require.NoError(t, tailer.Reset())
	lag, err := m.GetLag(logName, group)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lag.Lag())

	require.NoError(t, tailer.ToLastCommitted())
	readKey(t, tailer)
}

func TestCompoundClose(t *testing.T) {
	m := newTestManager(t)
	newTestLog(t, m, 2)

	tailer := mustTailer(t, m, partition(0), partition(1))
	require.NoError(t, tailer.Close())
	require.NoError(t, tailer.Close())
	assert.True(t, tailer.Closed())

	_, err := tailer.TryRead()
	require.ErrorIs(t, err, stream.ErrTailerClosed)
	require.ErrorIs(t, tailer.ToStart(), stream.ErrTailerClosed)

	// slots released
	mustTailer(t, m, partition(0), partition(1))
}
