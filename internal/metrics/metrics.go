// Package metrics provides Prometheus metrics for the sync hub.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sync hub.
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Message pipeline metrics
	MessagesSent       *prometheus.CounterVec
	MessagesFetched    *prometheus.CounterVec
	MessagesFailed     *prometheus.CounterVec
	MessageTransitions *prometheus.CounterVec
	PendingQueueDepth  *prometheus.GaugeVec
	PropagationFanout  prometheus.Histogram

	// Storage metrics
	StorageOperations *prometheus.CounterVec
	StorageLatency    *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheSize   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synchub_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "synchub_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_messages_sent_total",
			Help: "Total number of messages admitted by the pipeline",
		},
		[]string{"method", "state"},
	)

	m.MessagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_messages_fetched_total",
			Help: "Total number of outbound messages fetched from a node's queue",
		},
		[]string{"node_id"},
	)

	m.MessagesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_messages_failed_total",
			Help: "Total number of messages that transitioned to Failed",
		},
		[]string{"method"},
	)

	m.MessageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_message_transitions_total",
			Help: "Total number of message state transitions",
		},
		[]string{"state"},
	)

	m.PendingQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synchub_pending_queue_depth",
			Help: "Current number of Pending outbound messages for a node",
		},
		[]string{"node_id"},
	)

	m.PropagationFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synchub_propagation_fanout_peers",
			Help:    "Number of peer nodes an inbound message was propagated to",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	m.StorageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"backend", "operation"},
	)

	m.StorageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synchub_storage_latency_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	m.StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"backend", "operation"},
	)

	m.CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	m.CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synchub_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	m.CacheSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synchub_cache_size",
			Help: "Current cache size",
		},
		[]string{"cache"},
	)

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.MessagesSent,
		m.MessagesFetched,
		m.MessagesFailed,
		m.MessageTransitions,
		m.PendingQueueDepth,
		m.PropagationFanout,
		m.StorageOperations,
		m.StorageLatency,
		m.StorageErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CacheSize,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware returns HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.RequestsInFlight.Inc()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		path := normalizePath(r.URL.Path)

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes a URL path to reduce cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/admin/networks/") && strings.Contains(path, "/nodes/") && strings.HasSuffix(path, "/sync"):
		return "/admin/networks/{network_id}/nodes/{node_id}/sync"
	case strings.HasPrefix(path, "/admin/networks/") && strings.Contains(path, "/nodes/"):
		return "/admin/networks/{network_id}/nodes/{node_id}"
	case strings.HasPrefix(path, "/admin/networks/") && strings.HasSuffix(path, "/nodes"):
		return "/admin/networks/{network_id}/nodes"
	case strings.HasPrefix(path, "/admin/networks/"):
		return "/admin/networks/{network_id}"
	case path == "/messages/pending" || path == "/messages/next":
		return path
	case strings.HasPrefix(path, "/messages/"):
		return "/messages/{message_id}"
	}
	return path
}

// RecordMessageSent records a message admitted into the pipeline.
func (m *Metrics) RecordMessageSent(method, state string) {
	m.MessagesSent.WithLabelValues(method, state).Inc()
}

// RecordMessageFetched records an outbound message claimed from a node's queue.
func (m *Metrics) RecordMessageFetched(nodeID string) {
	m.MessagesFetched.WithLabelValues(nodeID).Inc()
}

// RecordMessageFailed records a message transitioning to Failed.
func (m *Metrics) RecordMessageFailed(method string) {
	m.MessagesFailed.WithLabelValues(method).Inc()
}

// RecordTransition records any message state transition.
func (m *Metrics) RecordTransition(state string) {
	m.MessageTransitions.WithLabelValues(state).Inc()
}

// RecordFanout records how many peers an inbound message propagated to.
func (m *Metrics) RecordFanout(peers int) {
	m.PropagationFanout.Observe(float64(peers))
}

// UpdatePendingQueueDepth sets the current Pending depth for a node's queue.
func (m *Metrics) UpdatePendingQueueDepth(nodeID string, depth float64) {
	m.PendingQueueDepth.WithLabelValues(nodeID).Set(depth)
}

// RecordStorageOperation records a storage operation.
func (m *Metrics) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	m.StorageOperations.WithLabelValues(backend, operation).Inc()
	m.StorageLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		m.StorageErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordCacheAccess records a cache access.
func (m *Metrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(cache).Inc()
	} else {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

// UpdateCacheSize updates the cache size.
func (m *Metrics) UpdateCacheSize(cache string, size float64) {
	m.CacheSize.WithLabelValues(cache).Set(size)
}
