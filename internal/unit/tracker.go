package unit

import (
	"context"
	"sync"
	"time"
)

// Tracker owns the background activities a service unit spawns from Start.
// Stop cancels every tracked activity and waits for completion within a grace
// window; activities are expected to honor cancellation promptly.
type Tracker struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewTracker returns a tracker rooted at parent. Activities observe
// cancellation through the context passed to Spawn callbacks.
func NewTracker(parent context.Context) *Tracker {
	ctx, cancel := context.WithCancel(parent)
	return &Tracker{ctx: ctx, cancel: cancel, started: true}
}

// Spawn runs fn in a tracked goroutine. fn must return when its context is
// cancelled.
func (t *Tracker) Spawn(fn func(ctx context.Context)) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	ctx := t.ctx
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		fn(ctx)
	}()
}

// CancelAndWait cancels all tracked activities and waits up to grace for them
// to finish. It returns false if the grace window elapsed first.
func (t *Tracker) CancelAndWait(grace time.Duration) bool {
	t.mu.Lock()
	t.started = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
