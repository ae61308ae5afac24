package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback engine.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	requestDuration       prometheus.Histogram
	resourcesCreatedTotal prometheus.Counter
	evictionsTotal        prometheus.Counter
	loadErrorsTotal       prometheus.Counter
	boundaryWaitsTotal    prometheus.Counter
	loadTimeoutsTotal     prometheus.Counter
	seeksIssuedTotal      prometheus.Counter
	activeResources       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the playback engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	requestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "playback_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	})
	resourcesCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_resources_created_total",
		Help: "Total number of decode resources created",
	})
	evictionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_evictions_total",
		Help: "Total number of decode resources evicted by LRU",
	})
	loadErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_load_errors_total",
		Help: "Total number of clip resources that failed to load",
	})
	boundaryWaitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_boundary_waits_total",
		Help: "Total number of times the play head froze at a clip boundary",
	})
	loadTimeoutsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_load_timeouts_total",
		Help: "Total number of boundary waits that timed out before the clip was ready",
	})
	seeksIssuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_seeks_issued_total",
		Help: "Total number of corrective seeks issued to decode handles",
	})
	activeResources := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_active_resources",
		Help: "Number of live decode resources in the pool",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		requestDuration,
		resourcesCreatedTotal,
		evictionsTotal,
		loadErrorsTotal,
		boundaryWaitsTotal,
		loadTimeoutsTotal,
		seeksIssuedTotal,
		activeResources,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		requestDuration:       requestDuration,
		resourcesCreatedTotal: resourcesCreatedTotal,
		evictionsTotal:        evictionsTotal,
		loadErrorsTotal:       loadErrorsTotal,
		boundaryWaitsTotal:    boundaryWaitsTotal,
		loadTimeoutsTotal:     loadTimeoutsTotal,
		seeksIssuedTotal:      seeksIssuedTotal,
		activeResources:       activeResources,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRequestDuration records one HTTP request latency in seconds.
func (m *Metrics) ObserveRequestDuration(seconds float64) {
	m.requestDuration.Observe(seconds)
}

// IncResourcesCreated increments the resources-created counter.
func (m *Metrics) IncResourcesCreated() {
	m.resourcesCreatedTotal.Inc()
}

// IncEvictions increments the LRU eviction counter.
func (m *Metrics) IncEvictions() {
	m.evictionsTotal.Inc()
}

// IncLoadErrors increments the clip load-error counter.
func (m *Metrics) IncLoadErrors() {
	m.loadErrorsTotal.Inc()
}

// IncBoundaryWaits increments the boundary-wait counter.
func (m *Metrics) IncBoundaryWaits() {
	m.boundaryWaitsTotal.Inc()
}

// IncLoadTimeouts increments the boundary-wait timeout counter.
func (m *Metrics) IncLoadTimeouts() {
	m.loadTimeoutsTotal.Inc()
}

// IncSeeksIssued increments the corrective-seek counter.
func (m *Metrics) IncSeeksIssued() {
	m.seeksIssuedTotal.Inc()
}

// SetActiveResources sets the live decode resource gauge.
func (m *Metrics) SetActiveResources(n int) {
	m.activeResources.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active resources).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
