package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media pool service.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	allocationsTotal *prometheus.CounterVec
	evictionsTotal   *prometheus.CounterVec
	releasesTotal    *prometheus.CounterVec
	blessTotal       prometheus.Counter
	containers       prometheus.Gauge
	slots            *prometheus.GaugeVec
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediapool_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediapool_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	allocationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediapool_allocations_total",
		Help: "Slot requests by media type and outcome (granted or denied)",
	}, []string{"type", "outcome"})
	evictionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediapool_evictions_total",
		Help: "Slots taken from a farther consumer for a closer one",
	}, []string{"type"})
	releasesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mediapool_releases_total",
		Help: "Slots returned to the free list",
	}, []string{"type"})
	blessTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mediapool_bless_total",
		Help: "Pools that completed the playback unlock sequence",
	})
	containers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mediapool_containers",
		Help: "Number of containers with a live pool",
	})
	slots := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediapool_slots",
		Help: "Slots by media type and state (allocated or free)",
	}, []string{"type", "state"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		allocationsTotal,
		evictionsTotal,
		releasesTotal,
		blessTotal,
		containers,
		slots,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		allocationsTotal: allocationsTotal,
		evictionsTotal:   evictionsTotal,
		releasesTotal:    releasesTotal,
		blessTotal:       blessTotal,
		containers:       containers,
		slots:            slots,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncAllocation counts one slot request outcome.
func (m *Metrics) IncAllocation(mediaType, outcome string) {
	m.allocationsTotal.WithLabelValues(mediaType, outcome).Inc()
}

// IncEviction counts one eviction.
func (m *Metrics) IncEviction(mediaType string) {
	m.evictionsTotal.WithLabelValues(mediaType).Inc()
}

// IncRelease counts one slot returned to the free list.
func (m *Metrics) IncRelease(mediaType string) {
	m.releasesTotal.WithLabelValues(mediaType).Inc()
}

// IncBless counts one completed pool blessing.
func (m *Metrics) IncBless() {
	m.blessTotal.Inc()
}

// SetContainers sets the live containers gauge.
func (m *Metrics) SetContainers(n int) {
	m.containers.Set(float64(n))
}

// SetSlots sets the allocated and free slot gauges for one media type.
func (m *Metrics) SetSlots(mediaType string, allocated, free int) {
	m.slots.WithLabelValues(mediaType, "allocated").Set(float64(allocated))
	m.slots.WithLabelValues(mediaType, "free").Set(float64(free))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
