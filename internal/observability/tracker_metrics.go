package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackerCollector exposes model load tracking metrics. It satisfies
// tracker.Recorder.
type TrackerCollector struct {
	gatherer prometheus.Gatherer

	PendingModels        prometheus.Gauge
	ModelsLoaded         *prometheus.CounterVec
	ModelsDropped        prometheus.Counter
	ReconcileAttempts    prometheus.Counter
	ReconcileExhaustions prometheus.Counter
	UnresolvedModels     prometheus.Gauge
	DocumentLoadFailures prometheus.Counter
}

// NewTrackerCollector registers tracker metrics against reg.
func NewTrackerCollector(reg prometheus.Registerer) (*TrackerCollector, error) {
	reg, gatherer := resolve(reg)

	pending, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_models_pending",
		Help: "Models that have fired some but not all expected load events.",
	}), "viewer_models_pending")
	if err != nil {
		return nil, err
	}
	loaded, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "viewer_models_loaded_total",
		Help: "Models reported fully loaded, labeled by how completion was detected.",
	}, []string{"via"}), "viewer_models_loaded_total")
	if err != nil {
		return nil, err
	}
	dropped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_models_dropped_total",
		Help: "Pending models dropped because the viewer no longer hosts them.",
	}), "viewer_models_dropped_total")
	if err != nil {
		return nil, err
	}
	attempts, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_reconcile_attempts_total",
		Help: "Reconciliation passes run against the live model list.",
	}), "viewer_reconcile_attempts_total")
	if err != nil {
		return nil, err
	}
	exhaustions, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_reconcile_exhaustions_total",
		Help: "Reconciliation runs that spent their attempt budget with models still pending.",
	}), "viewer_reconcile_exhaustions_total")
	if err != nil {
		return nil, err
	}
	unresolved, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_models_unresolved",
		Help: "Models still pending when the last reconciliation run gave up.",
	}), "viewer_models_unresolved")
	if err != nil {
		return nil, err
	}
	docFailures, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "viewer_document_load_failures_total",
		Help: "Documents that failed to load or attach.",
	}), "viewer_document_load_failures_total")
	if err != nil {
		return nil, err
	}

	return &TrackerCollector{
		gatherer:             gatherer,
		PendingModels:        pending,
		ModelsLoaded:         loaded,
		ModelsDropped:        dropped,
		ReconcileAttempts:    attempts,
		ReconcileExhaustions: exhaustions,
		UnresolvedModels:     unresolved,
		DocumentLoadFailures: docFailures,
	}, nil
}

func (c *TrackerCollector) SetPendingModels(n int) {
	if c == nil {
		return
	}
	c.PendingModels.Set(float64(n))
}

func (c *TrackerCollector) ModelLoaded(reconciled bool) {
	if c == nil {
		return
	}
	via := "events"
	if reconciled {
		via = "reconcile"
	}
	c.ModelsLoaded.WithLabelValues(via).Inc()
}

func (c *TrackerCollector) ModelDropped() {
	if c == nil {
		return
	}
	c.ModelsDropped.Inc()
}

func (c *TrackerCollector) ReconcileAttempt() {
	if c == nil {
		return
	}
	c.ReconcileAttempts.Inc()
}

func (c *TrackerCollector) ReconcileExhausted(remaining int) {
	if c == nil {
		return
	}
	c.ReconcileExhaustions.Inc()
	c.UnresolvedModels.Set(float64(remaining))
}

// DocumentLoadFailed counts a document that could not be loaded.
func (c *TrackerCollector) DocumentLoadFailed() {
	if c == nil {
		return
	}
	c.DocumentLoadFailures.Inc()
}

// Handler exposes a /metrics handler for the tracker's registry.
func (c *TrackerCollector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return handlerFor(prometheus.DefaultGatherer)
	}
	return handlerFor(c.gatherer)
}
