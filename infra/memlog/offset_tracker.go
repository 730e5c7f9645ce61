package memlog

import (
	"context"
	"sync"
	"time"
)

// OffsetTracker holds the committed position of one consumer group on one
// partition. Set wakes every goroutine blocked in Await or WaitUntil.
type OffsetTracker struct {
	mu      sync.Mutex
	value   int64
	changed chan struct{}
}

func newOffsetTracker() *OffsetTracker {
	return &OffsetTracker{changed: make(chan struct{})}
}

// Set stores v then broadcasts the change.
func (t *OffsetTracker) Set(v int64) {
	t.mu.Lock()
	t.value = v
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
}

func (t *OffsetTracker) Get() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

func (t *OffsetTracker) snapshot() (int64, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.changed
}

// Await blocks until the next Set, the timeout or ctx cancellation.
// It returns the time left; zero means the timeout elapsed.
func (t *OffsetTracker) Await(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	if timeout <= 0 {
		return 0, nil
	}
	_, ch := t.snapshot()
	deadline := time.Now().Add(timeout)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return max(time.Until(deadline), 0), nil
	case <-timer.C:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WaitUntil blocks until cond holds for the tracked value or the timeout
// elapses. The value and the wake-up channel are read together, so a Set
// racing with the check is never missed.
func (t *OffsetTracker) WaitUntil(ctx context.Context, timeout time.Duration, cond func(int64) bool) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		v, ch := t.snapshot()
		if cond(v) {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		}
		timer.Stop()
	}
}
