package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerMonotonic(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Current())
}

func TestSequencerSlotRotates(t *testing.T) {
	s := New(0)
	got := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		got = append(got, s.Slot(3))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, got)
}

func TestSequencerConcurrent(t *testing.T) {
	s := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s.Next()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), s.Current())
}
