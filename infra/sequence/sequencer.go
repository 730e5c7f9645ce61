package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing values.
// It is safe for concurrent use.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first Next returns start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next advances and returns the new value.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last value handed out.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Slot maps the current value onto [0, n) then advances. n must be positive.
func (s *Sequencer) Slot(n int) int {
	return int((s.Next() - 1) % uint64(n))
}
