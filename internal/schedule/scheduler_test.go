package schedule

import (
	"reflect"
	"testing"
	"time"

	"github.com/signalsfoundry/modelviewer/timectrl"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEventScheduler_SingleEvent(t *testing.T) {
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var counter int
	id := sched.Schedule(start.Add(10*time.Second), func() { counter++ })
	if id == "" {
		t.Fatalf("Schedule returned empty ID")
	}

	sched.RunDue()
	if counter != 0 {
		t.Fatalf("counter = %d before time advance, want 0", counter)
	}

	clock.Advance(10 * time.Second)
	sched.RunDue()
	if counter != 1 {
		t.Fatalf("counter = %d after time advance, want 1", counter)
	}

	sched.RunDue()
	if counter != 1 {
		t.Fatalf("counter = %d after second RunDue, want 1", counter)
	}
}

func TestEventScheduler_OrderAndTies(t *testing.T) {
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var order []string
	sched.Schedule(start.Add(2*time.Second), func() { order = append(order, "b") })
	sched.Schedule(start.Add(1*time.Second), func() { order = append(order, "a") })
	sched.Schedule(start.Add(2*time.Second), func() { order = append(order, "c") })

	clock.Advance(5 * time.Second)
	sched.RunDue()

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestEventScheduler_Cancel(t *testing.T) {
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	ran := false
	id := sched.Schedule(start.Add(time.Second), func() { ran = true })
	sched.Cancel(id)
	sched.Cancel("unknown")

	clock.Advance(time.Minute)
	sched.RunDue()
	if ran {
		t.Fatalf("cancelled event ran")
	}
}

func TestEventScheduler_CallbackMayReschedule(t *testing.T) {
	clock := timectrl.NewManualClock(start)
	sched := NewEventScheduler(clock)

	var runs int
	var tick func()
	tick = func() {
		runs++
		if runs < 3 {
			sched.Schedule(sched.Now(), tick)
		}
	}
	sched.Schedule(start, tick)
	sched.RunDue()

	if runs != 3 {
		t.Fatalf("runs = %d, want 3", runs)
	}
}

func TestFakeEventScheduler_AdvanceStepsThroughDeadlines(t *testing.T) {
	sched := NewFakeEventScheduler(start)

	var seen []time.Time
	var tick func()
	tick = func() {
		seen = append(seen, sched.Now())
		sched.Schedule(sched.Now().Add(time.Second), tick)
	}
	sched.Schedule(start.Add(time.Second), tick)

	sched.Advance(3 * time.Second)

	want := []time.Time{start.Add(1 * time.Second), start.Add(2 * time.Second), start.Add(3 * time.Second)}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	if got := sched.Now(); !got.Equal(start.Add(3 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", got, start.Add(3*time.Second))
	}
	if sched.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", sched.Pending())
	}
}

func TestFakeEventScheduler_NeverMovesBackwards(t *testing.T) {
	sched := NewFakeEventScheduler(start)
	sched.AdvanceTo(start.Add(-time.Hour))
	if got := sched.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
}
