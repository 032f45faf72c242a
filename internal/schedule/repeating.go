package schedule

import (
	"sync"
	"time"
)

// Repeating is a cancellable task that runs on an EventScheduler at a fixed
// interval. Each run receives its 1-based attempt number; returning false
// stops the task.
type Repeating struct {
	sched    EventScheduler
	interval time.Duration
	fn       func(attempt int) bool

	mu       sync.Mutex
	attempts int
	pending  string
	stopped  bool
	done     chan struct{}
}

// Every schedules fn to run interval from now and every interval after that
// until fn returns false or Stop is called.
func Every(sched EventScheduler, interval time.Duration, fn func(attempt int) bool) *Repeating {
	if interval <= 0 {
		interval = time.Second
	}
	r := &Repeating{
		sched:    sched,
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
	}
	r.mu.Lock()
	r.scheduleLocked()
	r.mu.Unlock()
	return r
}

func (r *Repeating) scheduleLocked() {
	r.pending = r.sched.Schedule(r.sched.Now().Add(r.interval), r.run)
}

func (r *Repeating) run() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.attempts++
	attempt := r.attempts
	r.pending = ""
	r.mu.Unlock()

	again := r.fn(attempt)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if !again {
		r.stopLocked()
		return
	}
	r.scheduleLocked()
}

// Stop cancels any scheduled run. It is safe to call more than once and from
// within fn.
func (r *Repeating) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Repeating) stopLocked() {
	if r.stopped {
		return
	}
	r.stopped = true
	if r.pending != "" {
		r.sched.Cancel(r.pending)
		r.pending = ""
	}
	close(r.done)
}

// Attempts reports how many times fn has been invoked.
func (r *Repeating) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Stopped reports whether the task will run again.
func (r *Repeating) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Done is closed once the task stops.
func (r *Repeating) Done() <-chan struct{} { return r.done }
