package match

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DeadlineTimer fires a callback after a configurable duration unless stopped.
// It is safe for concurrent use.
type DeadlineTimer struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	timer   clockwork.Timer
	gen     uint64 // bumped by Reset and Stop; a callback runs only for its own gen
	stopped bool
}

// NewDeadlineTimer creates and starts a timer that calls onFire after duration.
// onFire is called in a separate goroutine.
//
// Precondition: clock must not be nil; duration > 0; onFire must not be nil.
// Postcondition: Returns a running DeadlineTimer; onFire will be called unless
// Stop or Reset is called first.
func NewDeadlineTimer(clock clockwork.Clock, duration time.Duration, onFire func()) *DeadlineTimer {
	dt := &DeadlineTimer{clock: clock}
	dt.timer = clock.AfterFunc(duration, dt.guard(0, onFire))
	return dt
}

// Reset cancels the pending deadline and arms a new one.
//
// Precondition: duration > 0; onFire must not be nil.
// Postcondition: onFire will be called after duration from now unless Stop or
// Reset is called first. No callback of an earlier deadline starts after
// Reset returns.
func (dt *DeadlineTimer) Reset(duration time.Duration, onFire func()) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.gen++
	dt.stopped = false
	dt.timer.Stop()
	dt.timer = dt.clock.AfterFunc(duration, dt.guard(dt.gen, onFire))
}

// Stop cancels the pending deadline. Safe to call multiple times.
//
// Postcondition: No callback starts after Stop returns. A callback that
// already started may still be running, so onFire must re-check its own state.
func (dt *DeadlineTimer) Stop() {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.gen++
	dt.stopped = true
	dt.timer.Stop()
}

func (dt *DeadlineTimer) guard(gen uint64, onFire func()) func() {
	return func() {
		dt.mu.Lock()
		live := !dt.stopped && dt.gen == gen
		dt.mu.Unlock()
		if live {
			onFire()
		}
	}
}
