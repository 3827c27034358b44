// Package metrics publishes Prometheus series for the live-status pipeline.
// Every observe method tolerates a nil receiver so wiring metrics stays
// optional in tests.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	CacheLookupHit   CacheLookupOutcome = "hit"
	CacheLookupMiss  CacheLookupOutcome = "miss"
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a cache write-back.
type CacheStoreOutcome string

const (
	CacheStoreStored CacheStoreOutcome = "stored"
	CacheStoreError  CacheStoreOutcome = "error"
)

// AdmissionOutcome captures the rate limiter's verdict for one request.
type AdmissionOutcome string

const (
	AdmissionAllowed  AdmissionOutcome = "allowed"
	AdmissionRejected AdmissionOutcome = "rejected"
	// AdmissionFailOpen marks requests admitted because the limiter backend
	// errored.
	AdmissionFailOpen AdmissionOutcome = "fail_open"
)

// Recorder publishes Prometheus metrics for request, probe, cache, and
// admission activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency prometheus.Histogram

	probes       *prometheus.CounterVec
	probeLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec

	admissions *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestatus",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total /live-status requests by response status code.",
	}, []string{"status_code"})

	requestLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "livestatus",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed /live-status requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestatus",
		Subsystem: "probe",
		Name:      "total",
		Help:      "Upstream probes by classification outcome.",
	}, []string{"outcome"})

	probeLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "livestatus",
		Subsystem: "probe",
		Name:      "duration_seconds",
		Help:      "Latency distribution for upstream probes.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestatus",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Result cache operations by kind and result.",
	}, []string{"operation", "result"})

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livestatus",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Admission decisions made by the rate limiter.",
	}, []string{"decision"})

	reg.MustRegister(requests, requestLatency, probes, probeLatency, cacheOperations, admissions)

	return &Recorder{
		gatherer:        reg,
		handler:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		requests:        requests,
		requestLatency:  requestLatency,
		probes:          probes,
		probeLatency:    probeLatency,
		cacheOperations: cacheOperations,
		admissions:      admissions,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records one completed HTTP request.
func (r *Recorder) ObserveRequest(statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	label := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		label = "unknown"
	}
	r.requests.WithLabelValues(label).Inc()
	r.requestLatency.Observe(duration.Seconds())
}

// ObserveProbe records one upstream probe and its classification outcome.
func (r *Recorder) ObserveProbe(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	label := normalizeLabel(outcome)
	r.probes.WithLabelValues(label).Inc()
	r.probeLatency.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome, _ time.Duration) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues("lookup", normalizeLabel(string(result))).Inc()
}

// ObserveCacheStore records the result of a cache write-back.
func (r *Recorder) ObserveCacheStore(result CacheStoreOutcome, _ time.Duration) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues("store", normalizeLabel(string(result))).Inc()
}

// ObserveAdmission records a rate limiter verdict.
func (r *Recorder) ObserveAdmission(outcome AdmissionOutcome) {
	if r == nil {
		return
	}
	r.admissions.WithLabelValues(normalizeLabel(string(outcome))).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
