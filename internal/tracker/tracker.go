// Package tracker decides when a model loaded into the viewer is ready.
//
// A model is ready once three independent signals have been seen for it: its
// document node was attached, its geometry finished loading, and its object
// tree was built. The signals arrive in any order. A Tracker keeps one Status
// per model that has seen some but not all of them, reports each model
// exactly once when the last signal lands, and can reconcile its pending set
// against the live viewer when signals may have been missed.
//
// A Tracker is not safe for concurrent use. The viewer session calls it only
// from its event loop.
package tracker

import (
	"context"
	"sort"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

// Status holds the completion signals seen for one model.
type Status struct {
	DocumentNodeLoaded bool
	GeometryLoaded     bool
	ObjectTreeCreated  bool
}

// Merge ORs o into s. Flags are never cleared.
func (s Status) Merge(o Status) Status {
	return Status{
		DocumentNodeLoaded: s.DocumentNodeLoaded || o.DocumentNodeLoaded,
		GeometryLoaded:     s.GeometryLoaded || o.GeometryLoaded,
		ObjectTreeCreated:  s.ObjectTreeCreated || o.ObjectTreeCreated,
	}
}

// Complete reports whether all three signals have been seen.
func (s Status) Complete() bool {
	return s.DocumentNodeLoaded && s.GeometryLoaded && s.ObjectTreeCreated
}

// Recorder receives tracker metrics.
type Recorder interface {
	SetPendingModels(n int)
	ModelLoaded(reconciled bool)
	ModelDropped()
	ReconcileAttempt()
	ReconcileExhausted(remaining int)
}

type noopRecorder struct{}

func (noopRecorder) SetPendingModels(int)   {}
func (noopRecorder) ModelLoaded(bool)       {}
func (noopRecorder) ModelDropped()          {}
func (noopRecorder) ReconcileAttempt()      {}
func (noopRecorder) ReconcileExhausted(int) {}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Tracker) { t.log = logging.OrNoop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.rec = r
		}
	}
}

// WithOnLoaded sets the callback invoked once per model when it is ready.
func WithOnLoaded(fn func(viewer.Model)) Option {
	return func(t *Tracker) { t.onLoaded = fn }
}

// Tracker owns the pending status map.
type Tracker struct {
	pending  map[viewer.ModelID]*Status
	reported map[viewer.ModelID]struct{}
	onLoaded func(viewer.Model)
	log      logging.Logger
	rec      Recorder
}

// New returns an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		pending:  make(map[viewer.ModelID]*Status),
		reported: make(map[viewer.ModelID]struct{}),
		log:      logging.Noop(),
		rec:      noopRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update merges s into the status for m. It returns true when this call
// completed the model, in which case the model has been removed and
// reported. Scene-builder models and models already reported are ignored.
func (t *Tracker) Update(m viewer.Model, s Status) bool {
	if m == nil || m.IsSceneBuilder() {
		return false
	}
	id := m.ID()
	if _, done := t.reported[id]; done {
		return false
	}
	merged := s
	if existing, ok := t.pending[id]; ok {
		merged = existing.Merge(s)
	}
	if merged.Complete() {
		delete(t.pending, id)
		t.report(m, false)
		return true
	}
	t.pending[id] = &merged
	t.rec.SetPendingModels(len(t.pending))
	return false
}

// DocumentNodeLoaded records that m's document node was attached.
func (t *Tracker) DocumentNodeLoaded(m viewer.Model) bool {
	return t.Update(m, Status{DocumentNodeLoaded: true})
}

// GeometryLoaded records that m's geometry finished loading.
func (t *Tracker) GeometryLoaded(m viewer.Model) bool {
	return t.Update(m, Status{GeometryLoaded: true})
}

// ObjectTreeCreated records that m's object tree was built.
func (t *Tracker) ObjectTreeCreated(m viewer.Model) bool {
	return t.Update(m, Status{ObjectTreeCreated: true})
}

// Attach subscribes the tracker to the geometry and object tree events of
// src. The returned func detaches both listeners.
func (t *Tracker) Attach(src viewer.EventSource) func() {
	removeGeometry := src.AddEventListener(viewer.GeometryLoaded, func(ev viewer.Event) {
		if ev.Model == nil {
			return
		}
		t.log.Debug(context.Background(), "geometry loaded", logging.Int("model_id", int(ev.Model.ID())))
		t.GeometryLoaded(ev.Model)
	})
	removeTree := src.AddEventListener(viewer.ObjectTreeCreated, func(ev viewer.Event) {
		if ev.Model == nil {
			return
		}
		t.log.Debug(context.Background(), "object tree created", logging.Int("model_id", int(ev.Model.ID())))
		t.ObjectTreeCreated(ev.Model)
	})
	return func() {
		removeGeometry()
		removeTree()
	}
}

// Len reports how many models are pending.
func (t *Tracker) Len() int { return len(t.pending) }

// Pending returns the pending model ids in ascending order.
func (t *Tracker) Pending() []viewer.ModelID {
	ids := make([]viewer.ModelID, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Status returns the recorded status for id.
func (t *Tracker) Status(id viewer.ModelID) (Status, bool) {
	s, ok := t.pending[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// ReconcileResult lists what a Reconcile pass changed.
type ReconcileResult struct {
	// Recovered models were found loaded and reported.
	Recovered []viewer.ModelID
	// Vanished models were no longer hosted and were dropped unreported.
	Vanished []viewer.ModelID
}

// Reconcile cross-checks the pending set against the live viewer. A pending
// model that has its instance tree and that the viewer reports fully loaded
// is reported even though some of its events were never seen. A pending id
// the viewer no longer hosts is dropped with a warning and never reported.
func (t *Tracker) Reconcile(ctx context.Context, insp viewer.Inspector) ReconcileResult {
	var res ReconcileResult
	if len(t.pending) == 0 || insp == nil {
		return res
	}

	live := make(map[viewer.ModelID]struct{})
	for _, m := range insp.AllModels() {
		if m == nil {
			continue
		}
		id := m.ID()
		live[id] = struct{}{}
		status, ok := t.pending[id]
		if !ok {
			continue
		}
		if _, done := t.reported[id]; done {
			delete(t.pending, id)
			continue
		}
		if m.HasInstanceTree() && insp.IsLoadDone(m) {
			t.log.Info(ctx, "recovered model with missed load events",
				logging.Int("model_id", int(id)),
				logging.Bool("document_node_loaded", status.DocumentNodeLoaded),
				logging.Bool("geometry_loaded", status.GeometryLoaded),
				logging.Bool("object_tree_created", status.ObjectTreeCreated),
			)
			delete(t.pending, id)
			t.report(m, true)
			res.Recovered = append(res.Recovered, id)
		}
	}

	for _, id := range t.Pending() {
		if _, ok := live[id]; ok {
			continue
		}
		t.log.Warn(ctx, "model is no longer available", logging.Int("model_id", int(id)))
		delete(t.pending, id)
		t.rec.ModelDropped()
		res.Vanished = append(res.Vanished, id)
	}
	t.rec.SetPendingModels(len(t.pending))
	return res
}

func (t *Tracker) report(m viewer.Model, reconciled bool) {
	t.reported[m.ID()] = struct{}{}
	t.rec.SetPendingModels(len(t.pending))
	t.rec.ModelLoaded(reconciled)
	t.log.Info(context.Background(), "model loaded",
		logging.Int("model_id", int(m.ID())),
		logging.Bool("reconciled", reconciled),
	)
	if t.onLoaded != nil {
		t.onLoaded(m)
	}
}
