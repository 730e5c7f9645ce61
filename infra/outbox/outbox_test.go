package outbox

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlog/domain/stream"
)

var orders = stream.NameOfURN("test/orders")

func offset(p int, off int64) stream.LogOffset {
	return stream.OffsetOf(stream.PartitionOf(orders, p), off)
}

func openTest(t *testing.T) (*Outbox, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	o, err := OpenWithClock(t.TempDir(), mock)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, o.Close()) })
	return o, mock
}

func TestOutboxLifecycle(t *testing.T) {
	o, mock := openTest(t)
	off := offset(1, 42)

	k, err := o.PutNew(off, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, o.KeyOf(off), k)
	e, err := o.Get(k)
	require.NoError(t, err)
	assert.Equal(t, StateNew, e.State)
	assert.Equal(t, off, e.Offset)
	assert.Equal(t, o.Run(), e.Run)
	assert.Equal(t, []byte("payload"), e.Payload)

	mock.Add(time.Second)
	require.NoError(t, o.MarkSent(k))
	require.NoError(t, o.MarkFailed(k))
	require.NoError(t, o.MarkFailed(k))
	e, err = o.Get(k)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, uint32(2), e.Retries)
	assert.Equal(t, mock.Now().UnixNano(), e.LastAttempt)
	assert.Equal(t, []byte("payload"), e.Payload)

	require.NoError(t, o.MarkAcked(k))
	e, err = o.Get(k)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, e.State)
}

func TestOutboxGetMissing(t *testing.T) {
	o, _ := openTest(t)
	_, err := o.Get(o.KeyOf(offset(0, 0)))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, o.MarkSent(o.KeyOf(offset(0, 0))), ErrNotFound)
}

func TestOutboxScan(t *testing.T) {
	o, _ := openTest(t)
	other := stream.OffsetOf(stream.PartitionOf(stream.NameOfURN("ns/with/slash"), 12), 3)

	for _, off := range []stream.LogOffset{offset(0, 10), offset(0, 2), offset(1, 0), other} {
		_, err := o.PutNew(off, []byte(off.String()))
		require.NoError(t, err)
	}
	require.NoError(t, o.MarkAcked(o.KeyOf(offset(1, 0))))
	require.NoError(t, o.MarkFailed(o.KeyOf(offset(0, 10))))

	var pending []stream.LogOffset
	require.NoError(t, o.ScanPending(func(e Entry) error {
		assert.Equal(t, e.Offset.String(), string(e.Payload))
		pending = append(pending, e.Offset)
		return nil
	}))
	assert.ElementsMatch(t, []stream.LogOffset{offset(0, 2), offset(0, 10), other}, pending)

	var ordered []stream.LogOffset
	require.NoError(t, o.ScanByState(StateNew, func(e Entry) error {
		if e.Offset.Partition.Name == orders {
			ordered = append(ordered, e.Offset)
		}
		return nil
	}))
	assert.Equal(t, []stream.LogOffset{offset(0, 2)}, ordered)

	var failed []Entry
	require.NoError(t, o.ScanByState(StateFailed, func(e Entry) error {
		failed = append(failed, e)
		return nil
	}))
	require.Len(t, failed, 1)
	assert.Equal(t, offset(0, 10), failed[0].Offset)
	assert.Equal(t, uint32(1), failed[0].Retries)
}

func TestOutboxPruneAcked(t *testing.T) {
	o, _ := openTest(t)
	for i := int64(0); i < 5; i++ {
		_, err := o.PutNew(offset(0, i), nil)
		require.NoError(t, err)
	}
	require.NoError(t, o.MarkAcked(o.KeyOf(offset(0, 1))))
	require.NoError(t, o.MarkAcked(o.KeyOf(offset(0, 3))))

	n, err := o.PruneAcked()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = o.Get(o.KeyOf(offset(0, 1)))
	require.ErrorIs(t, err, ErrNotFound)

	n, err = o.PruneAcked()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOutboxSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)
	k, err := o.PutNew(offset(2, 7), []byte("x"))
	require.NoError(t, err)
	require.NoError(t, o.MarkFailed(k))
	require.NoError(t, o.Close())

	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()
	assert.Greater(t, o.Run(), k.Run)
	e, err := o.Get(k)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, []byte("x"), e.Payload)
}

func TestOutboxRunsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	off := offset(0, 0)

	o, err := Open(dir)
	require.NoError(t, err)
	first, err := o.PutNew(off, []byte("run1"))
	require.NoError(t, err)
	require.NoError(t, o.MarkSent(first))
	require.NoError(t, o.MarkFailed(first))
	require.NoError(t, o.Close())

	// offsets restart at zero after a restart
	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()
	second, err := o.PutNew(off, []byte("run2"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	var pending []Entry
	require.NoError(t, o.ScanPending(func(e Entry) error {
		pending = append(pending, e)
		return nil
	}))
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].Key)
	assert.Equal(t, StateFailed, pending[0].State)
	assert.Equal(t, uint32(1), pending[0].Retries)
	assert.Equal(t, []byte("run1"), pending[0].Payload)
	assert.Equal(t, second, pending[1].Key)
	assert.Equal(t, StateNew, pending[1].State)
	assert.Equal(t, []byte("run2"), pending[1].Payload)
}

func TestEntryEncoding(t *testing.T) {
	_, err := decodeEntry([]byte{1, 2})
	require.Error(t, err)

	in := Entry{State: StateSent, Retries: 3, LastAttempt: 99, Payload: []byte("abc")}
	out, err := decodeEntry(encodeEntry(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
