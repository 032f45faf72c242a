package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/schedule"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

const (
	// DefaultReconcileInterval is the spacing between reconciliation attempts.
	DefaultReconcileInterval = time.Second
	// DefaultReconcileAttempts bounds the number of reconciliation attempts.
	DefaultReconcileAttempts = 30
)

// Outcome is the state of a reconciliation run.
type Outcome int

const (
	// Running means attempts are still scheduled.
	Running Outcome = iota
	// Resolved means the pending set emptied.
	Resolved
	// Exhausted means the attempt budget ran out with models still pending.
	Exhausted
	// Stopped means Stop was called before the run finished.
	Stopped
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Resolved:
		return "resolved"
	case Exhausted:
		return "exhausted"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result summarises a reconciliation run.
type Result struct {
	Outcome   Outcome
	Attempts  int
	Remaining []viewer.ModelID
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithInterval sets the spacing between attempts.
func WithInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithReconcilerLogger sets the reconciler's logger.
func WithReconcilerLogger(l logging.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = logging.OrNoop(l) }
}

// WithOnExhausted sets a callback receiving the unresolved ids when the
// attempt budget runs out.
func WithOnExhausted(fn func([]viewer.ModelID)) ReconcilerOption {
	return func(r *Reconciler) { r.onExhausted = fn }
}

// Reconciler periodically reconciles a Tracker against the live viewer until
// nothing is pending or the attempt budget is spent. Its callbacks run from
// the scheduler's RunDue, which the session calls on its event loop.
type Reconciler struct {
	tracker     *Tracker
	inspector   viewer.Inspector
	sched       schedule.EventScheduler
	interval    time.Duration
	maxAttempts int
	log         logging.Logger
	onExhausted func([]viewer.ModelID)

	mu     sync.Mutex
	ctx    context.Context
	task   *schedule.Repeating
	result Result
	done   chan struct{}
}

// NewReconciler builds a reconciler; call Start to schedule it.
func NewReconciler(t *Tracker, insp viewer.Inspector, sched schedule.EventScheduler, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		tracker:     t,
		inspector:   insp,
		sched:       sched,
		interval:    DefaultReconcileInterval,
		maxAttempts: DefaultReconcileAttempts,
		log:         logging.Noop(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules the first attempt one interval from now. Calling Start
// more than once has no effect.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task != nil || r.result.Outcome != Running {
		return
	}
	r.ctx = ctx
	r.log.Info(ctx, "not all loaded models fired expected events; checking for expected data",
		logging.Int("pending", r.tracker.Len()),
	)
	r.task = schedule.Every(r.sched, r.interval, r.attempt)
}

func (r *Reconciler) attempt(n int) bool {
	ctx := r.context()

	if r.tracker.Len() == 0 {
		r.finish(Resolved, n-1, nil)
		r.log.Info(ctx, "all models fully loaded")
		return false
	}

	r.log.Info(ctx, "reconciling pending models",
		logging.Int("attempt", n),
		logging.Int("pending", r.tracker.Len()),
		logging.String("at", r.sched.Now().Format(time.RFC3339)),
	)
	r.tracker.rec.ReconcileAttempt()
	r.tracker.Reconcile(ctx, r.inspector)

	if r.tracker.Len() == 0 {
		r.finish(Resolved, n, nil)
		r.log.Info(ctx, "all models fully loaded", logging.Int("attempts", n))
		return false
	}
	if n >= r.maxAttempts {
		remaining := r.tracker.Pending()
		r.finish(Exhausted, n, remaining)
		r.tracker.rec.ReconcileExhausted(len(remaining))
		r.log.Error(ctx, "unable to load models",
			logging.Any("model_ids", remaining),
			logging.Int("attempts", n),
		)
		if r.onExhausted != nil {
			r.onExhausted(remaining)
		}
		return false
	}
	return true
}

func (r *Reconciler) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Reconciler) finish(o Outcome, attempts int, remaining []viewer.ModelID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result.Outcome != Running {
		return
	}
	r.result = Result{Outcome: o, Attempts: attempts, Remaining: remaining}
	close(r.done)
}

// Stop cancels outstanding attempts. A run that already finished keeps its
// outcome. Like the tracker, Stop must be called from the event loop.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	task := r.task
	r.mu.Unlock()
	if task != nil {
		task.Stop()
	}
	attempts := 0
	if task != nil {
		attempts = task.Attempts()
	}
	r.finish(Stopped, attempts, r.tracker.Pending())
}

// Done is closed once the run resolves, exhausts its budget or is stopped.
func (r *Reconciler) Done() <-chan struct{} { return r.done }

// Result returns the current state of the run.
func (r *Reconciler) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.result
	res.Remaining = append([]viewer.ModelID(nil), r.result.Remaining...)
	return res
}
