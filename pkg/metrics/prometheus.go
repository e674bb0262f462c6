// Package metrics provides Prometheus metrics for the Marquee search core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the Marquee service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Search path
	searchRequests  prometheus.Counter
	searchLatency   prometheus.Histogram
	searchDegraded  prometheus.Counter
	suggestRequests prometheus.Counter
	suggestLatency  prometheus.Histogram

	// Cache layer
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheStaleServed   prometheus.Counter
	cacheEvictions     prometheus.Counter
	cacheInvalidations prometheus.Counter
	cacheBypass        prometheus.Counter
	cacheEntries       prometheus.Gauge
	singleflightShared prometheus.Counter

	// Availability synchronizer
	deltasApplied   prometheus.Counter
	deltasStale     prometheus.Counter
	deltasExhausted prometheus.Counter
	applyRetries    prometheus.Counter
	syncLag         prometheus.Histogram
	syncLagLast     prometheus.Gauge
	epochBumps      prometheus.Counter

	// Degradation controller
	degradationState       prometheus.Gauge
	degradationTransitions *prometheus.CounterVec

	// Catalog / snapshot
	catalogEvents           prometheus.Gauge
	suggestionEntries       prometheus.Gauge
	snapshotRebuildDuration prometheus.Histogram
	snapshotCount           prometheus.Counter
	snapshotLastUnix        prometheus.Gauge

	// Delta queue
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "marquee",
		subsystem:        "search",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.searchRequests = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "requests_total",
		Help:      "Total number of search requests served",
	})

	m.searchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "latency_milliseconds",
		Help:      "Histogram of end-to-end search latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.searchDegraded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degraded_responses_total",
		Help:      "Total number of search responses annotated degraded",
	})

	m.suggestRequests = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "suggest",
		Name:      "requests_total",
		Help:      "Total number of autocomplete requests served",
	})

	m.suggestLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "suggest",
		Name:      "latency_milliseconds",
		Help:      "Histogram of autocomplete latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache misses",
	})

	m.cacheStaleServed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "stale_served_total",
		Help:      "Total number of possibly-stale entries served while degraded",
	})

	m.cacheEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of LRU evictions under memory pressure",
	})

	m.cacheInvalidations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Total number of dependency-driven invalidations",
	})

	m.cacheBypass = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "bypass_total",
		Help:      "Total number of queries that bypassed the cache for degraded events",
	})

	m.cacheEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Current number of cached entries",
	})

	m.singleflightShared = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "singleflight_shared_total",
		Help:      "Total number of callers that shared an in-flight recomputation",
	})

	m.deltasApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "deltas_applied_total",
		Help:      "Total number of inventory deltas applied",
	})

	m.deltasStale = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "deltas_stale_total",
		Help:      "Total number of deltas rejected as stale (idempotent drops)",
	})

	m.deltasExhausted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "deltas_exhausted_total",
		Help:      "Total number of deltas that exhausted their retry budget",
	})

	m.applyRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "apply_retries_total",
		Help:      "Total number of backend apply retries",
	})

	m.syncLag = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "lag_milliseconds",
		Help:      "Histogram of delta apply-to-invalidation lag in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.syncLagLast = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "lag_last_milliseconds",
		Help:      "Most recently observed synchronizer lag in milliseconds",
	})

	m.epochBumps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "sync",
		Name:      "epoch_bumps_total",
		Help:      "Total number of category/city epoch counter bumps",
	})

	m.degradationState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "health",
		Name:      "state",
		Help:      "Current serving mode (0=healthy, 1=recovering, 2=degraded)",
	})

	m.degradationTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "health",
		Name:      "transitions_total",
		Help:      "Total number of serving-mode transitions by from/to state",
	}, []string{"from", "to"})

	m.catalogEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "events",
		Help:      "Current number of events in the catalog",
	})

	m.suggestionEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "suggest",
		Name:      "entries",
		Help:      "Current number of prefixes in the suggestion index",
	})

	m.snapshotRebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "snapshot_rebuild_milliseconds",
		Help:      "Histogram of snapshot rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.snapshotCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "snapshots_total",
		Help:      "Total number of snapshots published",
	})

	m.snapshotLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "snapshot_last_unix",
		Help:      "Unix time of the last published snapshot",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Configured delta queue capacity",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Current number of queued deltas",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "utilization",
		Help:      "Queue utilization as a fraction of capacity",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueue_total",
		Help:      "Total number of deltas enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "dequeue_total",
		Help:      "Total number of deltas dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueue_errors_total",
		Help:      "Total number of failed enqueue attempts",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "active_count",
		Help:      "Number of active synchronizer workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "processing_latency_milliseconds",
		Help:      "Histogram of per-delta processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "errors_total",
		Help:      "Total number of worker processing errors",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "errors",
		Name:      "by_component_total",
		Help:      "Total number of errors by component and type",
	}, []string{"component", "type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_bytes",
		Help:      "Current heap memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	})
}

// Search path helpers.

func RecordSearchRequest()                { globalManager.searchRequests.Inc() }
func RecordSearchLatency(ms float64)      { globalManager.searchLatency.Observe(ms) }
func RecordSearchDegraded()               { globalManager.searchDegraded.Inc() }
func RecordSuggestRequest()               { globalManager.suggestRequests.Inc() }
func RecordSuggestLatency(ms float64)     { globalManager.suggestLatency.Observe(ms) }
func UpdateSuggestionEntries(count int)   { globalManager.suggestionEntries.Set(float64(count)) }

// Cache helpers.

func RecordCacheHit()              { globalManager.cacheHits.Inc() }
func RecordCacheMiss()             { globalManager.cacheMisses.Inc() }
func RecordCacheStaleServed()      { globalManager.cacheStaleServed.Inc() }
func RecordCacheEviction()         { globalManager.cacheEvictions.Inc() }
func RecordCacheInvalidation()     { globalManager.cacheInvalidations.Inc() }
func RecordCacheBypass()           { globalManager.cacheBypass.Inc() }
func UpdateCacheEntries(count int) { globalManager.cacheEntries.Set(float64(count)) }
func RecordSingleflightShared()    { globalManager.singleflightShared.Inc() }

// Synchronizer helpers.

func RecordDeltaApplied()       { globalManager.deltasApplied.Inc() }
func RecordDeltaStale()         { globalManager.deltasStale.Inc() }
func RecordDeltaExhausted()     { globalManager.deltasExhausted.Inc() }
func RecordApplyRetry()         { globalManager.applyRetries.Inc() }
func RecordEpochBump()          { globalManager.epochBumps.Inc() }

// RecordSyncLag records an observed apply-to-invalidation lag.
func RecordSyncLag(ms float64) {
	globalManager.syncLag.Observe(ms)
	globalManager.syncLagLast.Set(ms)
}

// Degradation helpers.

func UpdateDegradationState(state int) { globalManager.degradationState.Set(float64(state)) }
func RecordDegradationTransition(from, to string) {
	globalManager.degradationTransitions.WithLabelValues(from, to).Inc()
}

// Catalog helpers.

func UpdateCatalogEvents(count int)             { globalManager.catalogEvents.Set(float64(count)) }
func RecordSnapshotRebuildDuration(ms float64)  { globalManager.snapshotRebuildDuration.Observe(ms) }
func RecordSnapshotPublished()                  { globalManager.snapshotCount.Inc() }
func UpdateSnapshotLastUnix(ts int64)           { globalManager.snapshotLastUnix.Set(float64(ts)) }

// Queue helpers.

func UpdateQueueCapacity(capacity int)        { globalManager.queueCapacity.Set(float64(capacity)) }
func UpdateQueueSize(size int)                { globalManager.queueSize.Set(float64(size)) }
func UpdateQueueUtilization(fraction float64) { globalManager.queueUtilization.Set(fraction) }
func RecordQueueEnqueue()                     { globalManager.queueEnqueueRate.Inc() }
func RecordQueueDequeue()                     { globalManager.queueDequeueRate.Inc() }
func RecordQueueEnqueueError()                { globalManager.queueEnqueueErrors.Inc() }

// Worker helpers.

func UpdateWorkerActiveCount(count int)         { globalManager.workerActiveCount.Set(float64(count)) }
func RecordWorkerProcessingLatency(ms float64)  { globalManager.workerProcessingLatency.Observe(ms) }
func RecordWorkerError()                        { globalManager.workerErrorRate.Inc() }

// HTTP helpers.

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

// Error helpers.

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System helpers.

func UpdateSystemMemoryUsage(bytes uint64)  { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int)  { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
