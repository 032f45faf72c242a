package schedule

import (
	"sync"
	"time"
)

// FakeEventScheduler is an EventScheduler with its own notion of time for
// tests. Time only moves through AdvanceTo and Advance, each of which runs
// whatever became due, so retry budgets and intervals can be exercised
// without sleeping.
type FakeEventScheduler struct {
	mu  sync.Mutex
	now time.Time
	q   queue
}

// NewFakeEventScheduler creates a fake scheduler starting at start.
func NewFakeEventScheduler(start time.Time) *FakeEventScheduler {
	return &FakeEventScheduler{now: start, q: newQueue("fake-ev")}
}

// Now returns the current fake time.
func (s *FakeEventScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the given fake time.
func (s *FakeEventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.push(at, f)
}

// Cancel drops a scheduled callback.
func (s *FakeEventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.cancel(id)
}

// Pending reports how many callbacks are still scheduled.
func (s *FakeEventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.len()
}

// RunDue executes all callbacks due at the current fake time.
func (s *FakeEventScheduler) RunDue() {
	for {
		s.mu.Lock()
		e := s.q.popDue(s.now)
		s.mu.Unlock()
		if e == nil {
			return
		}
		if e.f != nil {
			e.f()
		}
	}
}

// AdvanceTo moves fake time to t, stepping through each scheduled callback
// time in order so that callbacks which reschedule themselves observe every
// intermediate deadline. Time never moves backwards.
func (s *FakeEventScheduler) AdvanceTo(t time.Time) {
	for {
		s.mu.Lock()
		if t.Before(s.now) {
			s.mu.Unlock()
			return
		}
		next, ok := s.nextLocked()
		if !ok || next.After(t) {
			s.now = t
			s.mu.Unlock()
			s.RunDue()
			return
		}
		if next.After(s.now) {
			s.now = next
		}
		s.mu.Unlock()
		s.RunDue()
	}
}

// Advance moves fake time forward by d.
func (s *FakeEventScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

func (s *FakeEventScheduler) nextLocked() (time.Time, bool) {
	for _, e := range s.q.entries {
		if !e.cancelled {
			return e.when, true
		}
	}
	return time.Time{}, false
}
