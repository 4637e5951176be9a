package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheLookupOutcome captures the result of a response cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached response.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached response was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a response cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the response cache entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// RequestOutcome classifies how a request engine call ended.
type RequestOutcome string

const (
	// RequestOK indicates the backend accepted the request.
	RequestOK RequestOutcome = "ok"
	// RequestError indicates the call ended in a normalized API error.
	RequestError RequestOutcome = "error"
	// RequestCanceled indicates the caller aborted the request.
	RequestCanceled RequestOutcome = "canceled"
)

// Recorder publishes Prometheus metrics for request engine and cache activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	retries        *prometheus.CounterVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openshelf",
		Subsystem: "rest",
		Name:      "requests_total",
		Help:      "Total backend requests issued by the request engine.",
	}, []string{"resource", "method", "outcome"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openshelf",
		Subsystem: "rest",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed backend requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"resource", "method"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openshelf",
		Subsystem: "rest",
		Name:      "retries_total",
		Help:      "Transport-level retry attempts performed by the request engine.",
	}, []string{"resource"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openshelf",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Response cache operations executed by the request engine.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openshelf",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for response cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	reg.MustRegister(requests, requestLatency, retries, cacheOperations, cacheLatency)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		requests:        requests,
		requestLatency:  requestLatency,
		retries:         retries,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
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

// Gatherer exposes the registry for tests that assert on gathered families.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}
	return r.gatherer
}

// ObserveRequest records one completed request engine call.
func (r *Recorder) ObserveRequest(resource, method string, outcome RequestOutcome, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(resource, method, string(outcome)).Inc()
	r.requestLatency.WithLabelValues(resource, method).Observe(elapsed.Seconds())
}

// ObserveRetry records one transport retry attempt.
func (r *Recorder) ObserveRetry(resource string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(resource).Inc()
}

// ObserveCacheLookup records a response cache lookup with its outcome.
func (r *Recorder) ObserveCacheLookup(outcome CacheLookupOutcome, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues("lookup", string(outcome)).Inc()
	r.cacheLatency.WithLabelValues("lookup", string(outcome)).Observe(elapsed.Seconds())
}

// ObserveCacheStore records a response cache store attempt with its outcome.
func (r *Recorder) ObserveCacheStore(outcome CacheStoreOutcome, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues("store", string(outcome)).Inc()
	r.cacheLatency.WithLabelValues("store", string(outcome)).Observe(elapsed.Seconds())
}
