package memlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlog/domain/stream"
)

var (
	testLog   = stream.NameOfURN("test/log")
	testGroup = stream.NameOfURN("test/group")
)

func TestPartitionAppendReturnsDenseOffsets(t *testing.T) {
	p := newPartition(testLog, 0)
	for i := 0; i < 5; i++ {
		assert.Equal(t, int64(i), p.Append(CodecPayload(fmt.Sprintf("m%d", i))))
	}
	assert.Equal(t, int64(5), p.Size())
}

func TestPartitionConcurrentAppend(t *testing.T) {
	p := newPartition(testLog, 0)
	const writers, perWriter = 4, 100

	var wg sync.WaitGroup
	seen := make([]int64, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				seen[w*perWriter+i] = p.Append(CodecPayload("x"))
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, int64(writers*perWriter), p.Size())
	offsets := make(map[int64]bool, len(seen))
	for _, off := range seen {
		require.False(t, offsets[off], "offset %d handed out twice", off)
		offsets[off] = true
	}
}

func TestCursorReadsInOrder(t *testing.T) {
	p := newPartition(testLog, 0)
	p.Append(CodecPayload("a"))
	p.Append(CodecPayload("b"))

	c, err := p.CreateTailer(testGroup)
	require.NoError(t, err)

	data, off, ok, err := c.Read(EncodingCodec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(data))
	assert.Equal(t, int64(0), off)

	data, off, ok, err = c.Read(EncodingCodec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", string(data))
	assert.Equal(t, int64(1), off)

	_, off, ok, err = c.Read(EncodingCodec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), off)
}

func TestCursorEncodingMismatch(t *testing.T) {
	p := newPartition(testLog, 0)
	p.Append(LegacyPayload("legacy"))

	c, err := p.CreateTailer(testGroup)
	require.NoError(t, err)

	_, _, ok, err := c.Read(EncodingCodec)
	require.ErrorIs(t, err, stream.ErrEncodingMismatch)
	assert.Equal(t, stream.ECorrupt, stream.ErrorCode(err))
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Offset(), "mismatch must not advance")

	data, _, ok, err := c.Read(EncodingLegacy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "legacy", string(data))
}

func TestCursorNavigation(t *testing.T) {
	p := newPartition(testLog, 0)
	for i := 0; i < 3; i++ {
		p.Append(CodecPayload("x"))
	}
	c, err := p.CreateTailer(testGroup)
	require.NoError(t, err)

	c.ToEnd()
	assert.Equal(t, int64(3), c.Offset())
	c.ToStart()
	assert.Equal(t, int64(0), c.Offset())

	assert.True(t, c.MoveTo(3))
	assert.True(t, c.MoveTo(1))
	assert.Equal(t, int64(1), c.Offset())
	assert.False(t, c.MoveTo(4))
	assert.False(t, c.MoveTo(-1))
	assert.Equal(t, int64(1), c.Offset())
}

func TestExclusiveTailerPerGroup(t *testing.T) {
	p := newPartition(testLog, 0)

	c, err := p.CreateTailer(testGroup)
	require.NoError(t, err)

	_, err = p.CreateTailer(testGroup)
	require.ErrorIs(t, err, stream.ErrTailerExists)

	other, err := p.CreateTailer(stream.NameOfURN("test/other"))
	require.NoError(t, err)
	other.Close()

	c.Close()
	c.Close()
	assert.False(t, p.HasTailer(testGroup))

	again, err := p.CreateTailer(testGroup)
	require.NoError(t, err)
	again.Close()
}

func TestCommitSurvivesClose(t *testing.T) {
	p := newPartition(testLog, 0)
	for i := 0; i < 5; i++ {
		p.Append(CodecPayload("x"))
	}
	c, err := p.CreateTailer(testGroup)
	require.NoError(t, err)
	c.Commit(2)
	c.Close()

	assert.Equal(t, int64(2), p.Committed(testGroup))
	assert.Equal(t, stream.LagOfRange(2, 5), p.Lag(testGroup))
	assert.Equal(t, int64(3), p.Lag(testGroup).Lag())

	next, err := p.CreateTailer(testGroup)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Committed())
}

func TestPartitionGroups(t *testing.T) {
	p := newPartition(testLog, 0)
	assert.Empty(t, p.Groups())
	assert.Equal(t, int64(0), p.Committed(testGroup))
	assert.Empty(t, p.Groups(), "reading a committed value must not register the group")

	p.Tracker(stream.NameOfURN("test/b")).Set(1)
	p.Tracker(stream.NameOfURN("test/a")).Set(1)
	assert.Equal(t, []stream.Name{stream.NameOfURN("test/a"), stream.NameOfURN("test/b")}, p.Groups())
}

func TestPayloadVariants(t *testing.T) {
	assert.Equal(t, EncodingLegacy, NewPayload(EncodingLegacy, nil).Encoding())
	assert.Equal(t, EncodingCodec, NewPayload(EncodingCodec, nil).Encoding())
	assert.Equal(t, "legacy", EncodingLegacy.String())
	assert.Equal(t, "codec", EncodingCodec.String())
}
