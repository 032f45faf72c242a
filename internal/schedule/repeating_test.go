package schedule

import (
	"testing"
	"time"
)

func TestRepeatingRunsUntilFnReturnsFalse(t *testing.T) {
	sched := NewFakeEventScheduler(start)

	var attempts []int
	r := Every(sched, time.Second, func(attempt int) bool {
		attempts = append(attempts, attempt)
		return attempt < 4
	})

	sched.Advance(500 * time.Millisecond)
	if len(attempts) != 0 {
		t.Fatalf("ran before first interval: %v", attempts)
	}

	sched.Advance(time.Minute)
	if len(attempts) != 4 {
		t.Fatalf("attempts = %v, want 4 runs", attempts)
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Fatalf("attempt[%d] = %d, want %d", i, a, i+1)
		}
	}
	if !r.Stopped() {
		t.Fatalf("task not stopped after fn returned false")
	}
	select {
	case <-r.Done():
	default:
		t.Fatalf("Done() not closed")
	}
	if sched.Pending() != 0 {
		t.Fatalf("Pending() = %d after stop, want 0", sched.Pending())
	}
}

func TestRepeatingStopCancelsNextRun(t *testing.T) {
	sched := NewFakeEventScheduler(start)

	runs := 0
	r := Every(sched, time.Second, func(int) bool {
		runs++
		return true
	})

	sched.Advance(2 * time.Second)
	r.Stop()
	r.Stop()
	sched.Advance(time.Minute)

	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
	if r.Attempts() != 2 {
		t.Fatalf("Attempts() = %d, want 2", r.Attempts())
	}
}

func TestRepeatingStopFromWithinFn(t *testing.T) {
	sched := NewFakeEventScheduler(start)

	var r *Repeating
	runs := 0
	r = Every(sched, time.Second, func(int) bool {
		runs++
		r.Stop()
		return true
	})

	sched.Advance(time.Minute)
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}
