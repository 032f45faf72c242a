package tracker

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/schedule"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestReconcilerExhaustsAfterExactlyThirtyAttempts(t *testing.T) {
	fv := viewer.NewFakeViewer()
	tr, loaded, rec := newRecordingTracker()
	sched := schedule.NewFakeEventScheduler(epoch)

	stuckA := fv.AddModel()
	stuckB := fv.AddModel()
	tr.GeometryLoaded(stuckA)
	tr.ObjectTreeCreated(stuckB)

	var exhausted []viewer.ModelID
	calls := 0
	r := NewReconciler(tr, fv, sched, WithOnExhausted(func(ids []viewer.ModelID) {
		calls++
		exhausted = ids
	}))
	r.Start(context.Background())

	sched.Advance(29 * time.Second)
	if rec.attempts != 29 {
		t.Fatalf("attempts after 29s = %d, want 29", rec.attempts)
	}
	if calls != 0 {
		t.Fatalf("exhausted early after %d attempts", rec.attempts)
	}

	sched.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("exhaustion callbacks = %d, want 1", calls)
	}
	want := []viewer.ModelID{stuckA.ID(), stuckB.ID()}
	if !reflect.DeepEqual(exhausted, want) {
		t.Fatalf("exhausted ids = %v, want %v", exhausted, want)
	}

	sched.Advance(time.Hour)
	if rec.attempts != DefaultReconcileAttempts {
		t.Fatalf("attempts = %d, want %d", rec.attempts, DefaultReconcileAttempts)
	}
	if calls != 1 || rec.exhausted != 1 {
		t.Fatalf("exhaustion reported %d/%d times, want once", calls, rec.exhausted)
	}
	if sched.Pending() != 0 {
		t.Fatalf("scheduler still has %d callbacks", sched.Pending())
	}

	res := r.Result()
	if res.Outcome != Exhausted || res.Attempts != DefaultReconcileAttempts || !reflect.DeepEqual(res.Remaining, want) {
		t.Fatalf("Result() = %+v", res)
	}
	select {
	case <-r.Done():
	default:
		t.Fatalf("Done() not closed after exhaustion")
	}
	if len(*loaded) != 0 {
		t.Fatalf("loaded = %v, want none", *loaded)
	}
	if tr.Len() != 2 {
		t.Fatalf("tracker lost pending entries: %v", tr.Pending())
	}
}

func TestReconcilerRecoversAndStops(t *testing.T) {
	fv := viewer.NewFakeViewer()
	tr, loaded, _ := newRecordingTracker()
	sched := schedule.NewFakeEventScheduler(epoch)

	m := fv.AddModel()
	tr.DocumentNodeLoaded(m)

	r := NewReconciler(tr, fv, sched, WithInterval(time.Second), WithMaxAttempts(5))
	r.Start(context.Background())

	sched.Advance(2 * time.Second)
	if len(*loaded) != 0 {
		t.Fatalf("reported before load done")
	}

	m.SetInstanceTree(true)
	fv.SetLoadDone(m.ID(), true)
	sched.Advance(time.Second)

	if want := []viewer.ModelID{m.ID()}; !reflect.DeepEqual(*loaded, want) {
		t.Fatalf("loaded = %v, want %v", *loaded, want)
	}
	res := r.Result()
	if res.Outcome != Resolved || res.Attempts != 3 {
		t.Fatalf("Result() = %+v, want resolved after 3 attempts", res)
	}

	sched.Advance(time.Minute)
	if len(*loaded) != 1 {
		t.Fatalf("loaded = %v after resolution", *loaded)
	}
	if sched.Pending() != 0 {
		t.Fatalf("scheduler still has %d callbacks", sched.Pending())
	}
}

func TestReconcilerResolvesWhenEventsArriveBetweenTicks(t *testing.T) {
	fv := viewer.NewFakeViewer()
	tr, loaded, rec := newRecordingTracker()
	sched := schedule.NewFakeEventScheduler(epoch)

	m := fv.AddModel()
	tr.DocumentNodeLoaded(m)

	r := NewReconciler(tr, fv, sched)
	r.Start(context.Background())

	sched.Advance(1500 * time.Millisecond)
	tr.GeometryLoaded(m)
	tr.ObjectTreeCreated(m)
	sched.Advance(time.Second)

	if len(*loaded) != 1 {
		t.Fatalf("loaded = %v, want one report", *loaded)
	}
	if res := r.Result(); res.Outcome != Resolved || res.Attempts != 1 {
		t.Fatalf("Result() = %+v, want resolved with 1 attempt", res)
	}
	if rec.attempts != 1 {
		t.Fatalf("reconcile passes = %d, want 1", rec.attempts)
	}
}

func TestReconcilerDropsVanishedAndResolves(t *testing.T) {
	fv := viewer.NewFakeViewer()
	tr, loaded, _ := newRecordingTracker()
	sched := schedule.NewFakeEventScheduler(epoch)

	m := fv.AddModel()
	tr.GeometryLoaded(m)
	fv.RemoveModel(m.ID())

	r := NewReconciler(tr, fv, sched)
	r.Start(context.Background())
	sched.Advance(time.Second)

	if len(*loaded) != 0 {
		t.Fatalf("vanished model reported: %v", *loaded)
	}
	if res := r.Result(); res.Outcome != Resolved {
		t.Fatalf("Result() = %+v, want resolved", res)
	}
}

func TestReconcilerStop(t *testing.T) {
	fv := viewer.NewFakeViewer()
	tr, _, rec := newRecordingTracker()
	sched := schedule.NewFakeEventScheduler(epoch)

	tr.GeometryLoaded(fv.AddModel())
	r := NewReconciler(tr, fv, sched)
	r.Start(context.Background())
	r.Start(context.Background())

	sched.Advance(2 * time.Second)
	r.Stop()
	sched.Advance(time.Minute)

	if rec.attempts != 2 {
		t.Fatalf("attempts = %d, want 2", rec.attempts)
	}
	if res := r.Result(); res.Outcome != Stopped || res.Attempts != 2 {
		t.Fatalf("Result() = %+v", res)
	}
}
