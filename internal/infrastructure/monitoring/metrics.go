package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Upstream (LangSmith) metrics
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	ThrottleWait     prometheus.Histogram

	// Span tree metrics
	TreeAnomalies *prometheus.CounterVec
	TreeSpans     prometheus.Histogram
	Quarantined   prometheus.Counter

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64 `json:"total_requests"`
	TotalErrors   int64 `json:"total_errors"`
	UpstreamCalls int64 `json:"upstream_calls"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	Retries       int64 `json:"retries"`
}

// NewMetrics creates a new metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadscope_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threadscope_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threadscope_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Upstream metrics
		UpstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadscope_upstream_calls_total",
				Help: "Total number of dispatched upstream calls",
			},
			[]string{"endpoint", "outcome"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threadscope_upstream_duration_seconds",
				Help:    "Upstream call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadscope_upstream_retries_total",
				Help: "Total number of upstream retries",
			},
			[]string{"endpoint", "reason"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadscope_cache_lookups_total",
				Help: "Response cache lookups by result",
			},
			[]string{"result"},
		),
		ThrottleWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "threadscope_throttle_wait_seconds",
				Help:    "Time spent waiting for the dispatch gate",
				Buckets: []float64{0, .05, .1, .2, .5, 1, 2, 5},
			},
		),

		// Span tree metrics
		TreeAnomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadscope_tree_anomalies_total",
				Help: "Structural anomalies absorbed while building span trees",
			},
			[]string{"kind"},
		),
		TreeSpans: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "threadscope_tree_spans",
				Help:    "Number of spans per assembled thread",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		Quarantined: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadscope_runs_quarantined_total",
				Help: "Malformed run records dropped at the API boundary",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordUpstreamCall records one dispatched upstream call
func (m *Metrics) RecordUpstreamCall(endpoint, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.UpstreamCalls++
	m.mu.Unlock()
}

// RecordRetry records a retry of an upstream call
func (m *Metrics) RecordRetry(endpoint, reason string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(endpoint, reason).Inc()

	m.mu.Lock()
	m.snapshot.Retries++
	m.mu.Unlock()
}

// RecordCacheLookup records a response cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()

	m.mu.Lock()
	if hit {
		m.snapshot.CacheHits++
	} else {
		m.snapshot.CacheMisses++
	}
	m.mu.Unlock()
}

// RecordThrottleWait records time spent at the dispatch gate
func (m *Metrics) RecordThrottleWait(d time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleWait.Observe(d.Seconds())
}

// RecordTree records the size and anomalies of a built span tree
func (m *Metrics) RecordTree(spans, duplicates, orphans, cycles int) {
	if m == nil {
		return
	}
	m.TreeSpans.Observe(float64(spans))
	m.TreeAnomalies.WithLabelValues("duplicate").Add(float64(duplicates))
	m.TreeAnomalies.WithLabelValues("orphan").Add(float64(orphans))
	m.TreeAnomalies.WithLabelValues("cycle").Add(float64(cycles))
}

// RecordQuarantined records malformed records dropped at decode time
func (m *Metrics) RecordQuarantined(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Quarantined.Add(float64(n))
}

// Snapshot returns the current counters for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
