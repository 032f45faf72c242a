package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RelayCollector bundles Prometheus metrics for the token relay's HTTP
// surface and its upstream credential exchanges.
type RelayCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	TokenExchanges         *prometheus.CounterVec
	TokenExchangeDurations prometheus.Histogram
}

// NewRelayCollector registers relay metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewRelayCollector(reg prometheus.Registerer) (*RelayCollector, error) {
	reg, gatherer := resolve(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	exchanges, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_exchanges_total",
		Help: "Client-credentials exchanges against the authentication service, labeled by upstream status code.",
	}, []string{"code"}), "token_exchanges_total")
	if err != nil {
		return nil, err
	}

	exchangeDurations, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "token_exchange_duration_seconds",
		Help:    "Latency of upstream client-credentials exchanges in seconds.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "token_exchange_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &RelayCollector{
		gatherer:               gatherer,
		HTTPRequests:           requests,
		HTTPDurations:          durations,
		TokenExchanges:         exchanges,
		TokenExchangeDurations: exchangeDurations,
	}, nil
}

// RecordHTTPRequest records one served request.
func (c *RelayCollector) RecordHTTPRequest(method, route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.HTTPDurations.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTokenExchange records one upstream exchange. code is the upstream
// HTTP status, or 0 when no response was received.
func (c *RelayCollector) RecordTokenExchange(code int, d time.Duration) {
	if c == nil {
		return
	}
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	c.TokenExchanges.WithLabelValues(label).Inc()
	c.TokenExchangeDurations.Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RelayCollector) Handler() http.Handler {
	return handlerFor(c.gathererOrDefault())
}

func (c *RelayCollector) gathererOrDefault() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

func handlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
