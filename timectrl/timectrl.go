package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source shared by the scheduler, the token exchanger and
// the viewer session. Tests substitute a ManualClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t. Earlier times are ignored so the clock stays
// monotonic.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		return
	}
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
}

// TimeController ticks at a fixed wall-clock interval and notifies registered
// listeners with the tick time. It is the heartbeat that drives due
// scheduler events on the viewer session loop.
type TimeController struct {
	Tick time.Duration

	mu        sync.RWMutex
	listeners []func(time.Time)
}

// NewTimeController constructs a controller ticking every tick.
func NewTimeController(tick time.Duration) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{Tick: tick}
}

// Now implements Clock.
func (tc *TimeController) Now() time.Time { return time.Now() }

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Run ticks until ctx is cancelled. Listeners are called from the Run
// goroutine; callers that need a single thread of control post onto their
// own loop from the listener.
func (tc *TimeController) Run(ctx context.Context) {
	ticker := time.NewTicker(tc.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tc.mu.RLock()
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.RUnlock()
			for _, fn := range listeners {
				fn(now)
			}
		}
	}
}

// Start runs the controller in a separate goroutine. The returned channel is
// closed once ctx is cancelled and the last tick has been delivered.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		tc.Run(ctx)
	}()
	return done
}
