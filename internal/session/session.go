// Package session runs the viewer start-up sequence: placeholder models,
// tracker wiring, the bulk load, reconciliation of stragglers and the
// initial camera.
package session

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/loader"
	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/schedule"
	"github.com/signalsfoundry/modelviewer/internal/tracker"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

// HomeCamera is the camera the session starts from before fitting to view:
// looking from (1,1,1) at the origin, Y up, 50 degree perspective.
func HomeCamera(aspect float64) viewer.Camera {
	return viewer.Camera{
		Eye:         viewer.Vec3{X: 1, Y: 1, Z: 1},
		Target:      viewer.Vec3{},
		Up:          viewer.Vec3{Y: 1},
		Aspect:      aspect,
		FieldOfView: 50 * math.Pi / 180,
		OrthoScale:  60,
		Perspective: true,
	}
}

// ErrNotStarted is returned by Wait before Start.
var ErrNotStarted = errors.New("session: not started")

// Recorder collects session metrics.
type Recorder interface {
	tracker.Recorder
	loader.FailureRecorder
}

// Config carries reconciliation settings.
type Config struct {
	ReconcileInterval time.Duration
	ReconcileAttempts int
}

// Result summarises a finished session start-up.
type Result struct {
	Load      loader.Summary
	Reconcile tracker.Result
	Loaded    []viewer.ModelID
}

// Session drives one viewer through start-up. Start and the functions
// passed to the dispatcher touch the tracker; with an event loop dispatcher
// they all run on the loop goroutine.
type Session struct {
	viewer   viewer.Viewer
	sched    schedule.EventScheduler
	cfg      Config
	log      logging.Logger
	rec      Recorder
	dispatch loader.Dispatcher
	onLoaded func(viewer.Model)

	tracker    *tracker.Tracker
	reconciler *tracker.Reconciler
	detach     func()
	summary    loader.Summary
	loaded     []viewer.ModelID
	started    bool
	nothingDue chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = logging.OrNoop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.rec = r }
}

// WithDispatcher routes tracker and viewer-state work through d, usually an
// event loop's Do.
func WithDispatcher(d loader.Dispatcher) Option {
	return func(s *Session) {
		if d != nil {
			s.dispatch = d
		}
	}
}

// WithOnLoaded sets a callback run once per fully loaded model.
func WithOnLoaded(fn func(viewer.Model)) Option {
	return func(s *Session) { s.onLoaded = fn }
}

// New prepares a session for v. sched drives reconciliation attempts.
func New(v viewer.Viewer, sched schedule.EventScheduler, cfg Config, opts ...Option) *Session {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = tracker.DefaultReconcileInterval
	}
	if cfg.ReconcileAttempts <= 0 {
		cfg.ReconcileAttempts = tracker.DefaultReconcileAttempts
	}
	s := &Session{
		viewer: v,
		sched:  sched,
		cfg:    cfg,
		log:    logging.Noop(),
		dispatch: func(_ context.Context, fn func()) error {
			fn()
			return nil
		},
		nothingDue: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	topts := []tracker.Option{
		tracker.WithLogger(s.log),
		tracker.WithOnLoaded(func(m viewer.Model) {
			s.loaded = append(s.loaded, m.ID())
			if s.onLoaded != nil {
				s.onLoaded(m)
			}
		}),
	}
	if s.rec != nil {
		topts = append(topts, tracker.WithRecorder(s.rec))
	}
	s.tracker = tracker.New(topts...)
	return s
}

// Tracker exposes the session's tracker. Touch it only from the dispatcher.
func (s *Session) Tracker() *tracker.Tracker { return s.tracker }

// Start runs the start-up sequence up to and including the initial camera,
// leaving any reconciliation scheduled. Load failures are logged, not
// returned; the error is a context or dispatcher failure.
func (s *Session) Start(ctx context.Context, placements []loader.Placement) error {
	if err := s.dispatch(ctx, func() { s.started = true }); err != nil {
		return err
	}

	// Placeholder models keep the viewer from treating the scene as empty
	// before the first document arrives; the tracker ignores them.
	if _, err := s.viewer.AddSceneBuilderModel(ctx, true); err != nil {
		return err
	}
	if _, err := s.viewer.AddSceneBuilderModel(ctx, false); err != nil {
		return err
	}

	if err := s.dispatch(ctx, func() { s.detach = s.tracker.Attach(s.viewer) }); err != nil {
		return err
	}

	lopts := []loader.Option{loader.WithLogger(s.log), loader.WithDispatcher(s.dispatch)}
	if s.rec != nil {
		lopts = append(lopts, loader.WithFailureRecorder(s.rec))
	}
	summary, err := loader.New(s.viewer, s.tracker, lopts...).LoadAll(ctx, placements)
	s.summary = summary
	if err != nil {
		return err
	}

	return s.dispatch(ctx, func() {
		if s.tracker.Len() > 0 {
			s.reconciler = tracker.NewReconciler(s.tracker, s.viewer, s.sched,
				tracker.WithInterval(s.cfg.ReconcileInterval),
				tracker.WithMaxAttempts(s.cfg.ReconcileAttempts),
				tracker.WithReconcilerLogger(s.log),
			)
			s.reconciler.Start(ctx)
		} else {
			s.log.Info(ctx, "all models fully loaded")
		}
		s.viewer.Invalidate()
		s.resetView()
	})
}

// resetView places the home camera, then fits to view and records the
// result as the home view once the camera transition completes.
func (s *Session) resetView() {
	s.viewer.SetViewFromCamera(HomeCamera(s.viewer.Aspect()))

	var remove func()
	recorded := false
	remove = s.viewer.AddEventListener(viewer.CameraTransitionCompleted, func(viewer.Event) {
		if recorded {
			return
		}
		recorded = true
		s.viewer.RecordHomeView()
		if remove != nil {
			remove()
		}
	})
	s.viewer.FitToView()
}

// Done is closed once reconciliation has finished, or immediately when
// there was nothing to reconcile. It is nil before Start.
func (s *Session) Done() <-chan struct{} {
	if s.reconciler != nil {
		return s.reconciler.Done()
	}
	if s.started {
		closeOnce(s.nothingDue)
		return s.nothingDue
	}
	return nil
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Wait blocks until Done or ctx ends, then returns the session result. On
// cancellation a running reconciliation is stopped through the dispatcher.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	var res Result
	done := make(chan (<-chan struct{}), 1)
	if err := s.dispatch(ctx, func() { done <- s.Done() }); err != nil {
		return res, err
	}
	due := <-done
	if due == nil {
		return res, ErrNotStarted
	}

	var waitErr error
	select {
	case <-due:
	case <-ctx.Done():
		waitErr = ctx.Err()
		stopCtx := context.WithoutCancel(ctx)
		_ = s.dispatch(stopCtx, func() {
			if s.reconciler != nil {
				s.reconciler.Stop()
			}
		})
	}

	_ = s.dispatch(context.WithoutCancel(ctx), func() {
		res.Load = s.summary
		res.Loaded = append([]viewer.ModelID(nil), s.loaded...)
		if s.reconciler != nil {
			res.Reconcile = s.reconciler.Result()
		} else {
			res.Reconcile = tracker.Result{Outcome: tracker.Resolved}
		}
		if s.detach != nil {
			s.detach()
			s.detach = nil
		}
	})
	return res, waitErr
}

// Run is Start followed by Wait.
func (s *Session) Run(ctx context.Context, placements []loader.Placement) (Result, error) {
	if err := s.Start(ctx, placements); err != nil {
		return Result{Load: s.summary}, err
	}
	return s.Wait(ctx)
}
