// Package metrics provides Prometheus metrics for the kline service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the kline service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Generation
	timelinesGenerated *prometheus.CounterVec
	generationLatency  *prometheus.HistogramVec
	fallbacks          *prometheus.CounterVec
	superseded         prometheus.Counter
	chartRecoveries    prometheus.Counter
	chartsRegistered   prometheus.Gauge

	// Decade cache
	decadeCacheHits   prometheus.Counter
	decadeCacheMisses prometheus.Counter
	decadeCacheSize   prometheus.Gauge

	// Narrative backend
	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	parseRepairs    *prometheus.CounterVec

	// Timeline store
	storeOperations *prometheus.CounterVec

	// Annotation queue and workers
	queueSize          prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	annotationsDeduped prometheus.Counter
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter
	annotationLatency  prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
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
		namespace:        "kline",
		subsystem:        "engine",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.timelinesGenerated = m.counterVec("timelines_generated_total",
		"Total number of timelines generated by strategy and kind", "strategy", "kind")
	m.generationLatency = m.histogramVec("generation_latency_milliseconds",
		"Timeline generation latency in milliseconds", "strategy", "kind")
	m.fallbacks = m.counterVec("fallbacks_total",
		"Total number of narrative generations replaced by the deterministic strategy", "reason")
	m.superseded = m.counter("generations_superseded_total",
		"Total number of in-flight narrative generations cancelled by a newer request")
	m.chartRecoveries = m.counter("chart_lookup_recoveries_total",
		"Total number of horoscope lookups recovered with a substitute score")
	m.chartsRegistered = m.gauge("charts_registered",
		"Number of charts currently registered")

	m.decadeCacheHits = m.counter("decade_cache_hits_total", "Decade base cache hits")
	m.decadeCacheMisses = m.counter("decade_cache_misses_total", "Decade base cache misses")
	m.decadeCacheSize = m.gauge("decade_cache_entries", "Entries held by the decade base cache")

	m.backendRequests = m.counterVec("backend_requests_total",
		"Text generation backend requests by provider and outcome", "provider", "outcome")
	m.backendLatency = m.histogramVec("backend_latency_milliseconds",
		"Text generation backend latency in milliseconds", "provider")
	m.breakerState = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "backend_breaker_state",
		Help:        "Circuit breaker state per backend (0 closed, 1 half-open, 2 open)",
		ConstLabels: m.constLabels,
	}, []string{"name"})
	m.parseRepairs = m.counterVec("narrative_parse_repairs_total",
		"Narrative responses that needed a tolerant parse stage", "stage")

	m.storeOperations = m.counterVec("store_operations_total",
		"Timeline store operations by backend, operation and outcome", "backend", "op", "outcome")

	m.queueSize = m.gauge("annotation_queue_size", "Current size of the annotation queue")
	m.queueEnqueue = m.counter("annotation_queue_enqueue_total", "Annotation jobs enqueued")
	m.queueDequeue = m.counter("annotation_queue_dequeue_total", "Annotation jobs dequeued")
	m.queueEnqueueErrors = m.counter("annotation_queue_enqueue_errors_total", "Annotation jobs rejected by the queue")
	m.annotationsDeduped = m.counter("annotation_duplicates_total", "Annotation jobs dropped as duplicates")
	m.workerCount = m.gauge("annotation_workers", "Number of running annotation workers")
	m.workerErrors = m.counter("annotation_worker_errors_total", "Annotation jobs that failed")
	m.annotationLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "annotation_latency_milliseconds",
		Help: "Annotation job latency in milliseconds", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	})

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total",
		"HTTP error responses by endpoint, type and severity", "endpoint", "type", "severity")
}

func active() *Manager {
	if globalManager == nil || !globalManager.enabled {
		return nil
	}
	return globalManager
}

// RecordTimelineGenerated counts a generated timeline and its latency.
func RecordTimelineGenerated(strategy, kind string, latencyMs float64) {
	if m := active(); m != nil {
		m.timelinesGenerated.WithLabelValues(strategy, kind).Inc()
		m.generationLatency.WithLabelValues(strategy, kind).Observe(latencyMs)
	}
}

// RecordFallback counts a narrative generation replaced by the deterministic one.
func RecordFallback(reason string) {
	if m := active(); m != nil {
		m.fallbacks.WithLabelValues(reason).Inc()
	}
}

// RecordSuperseded counts a cancelled in-flight generation.
func RecordSuperseded() {
	if m := active(); m != nil {
		m.superseded.Inc()
	}
}

// RecordChartRecovery counts a recovered horoscope lookup.
func RecordChartRecovery() {
	if m := active(); m != nil {
		m.chartRecoveries.Inc()
	}
}

// UpdateChartsRegistered sets the number of registered charts.
func UpdateChartsRegistered(n int) {
	if m := active(); m != nil {
		m.chartsRegistered.Set(float64(n))
	}
}

// RecordDecadeCacheHit counts a decade cache hit.
func RecordDecadeCacheHit() {
	if m := active(); m != nil {
		m.decadeCacheHits.Inc()
	}
}

// RecordDecadeCacheMiss counts a decade cache miss.
func RecordDecadeCacheMiss() {
	if m := active(); m != nil {
		m.decadeCacheMisses.Inc()
	}
}

// UpdateDecadeCacheSize sets the number of cached decade bases.
func UpdateDecadeCacheSize(n int) {
	if m := active(); m != nil {
		m.decadeCacheSize.Set(float64(n))
	}
}

// RecordBackendRequest counts a backend request and its latency.
func RecordBackendRequest(provider, outcome string, latencyMs float64) {
	if m := active(); m != nil {
		m.backendRequests.WithLabelValues(provider, outcome).Inc()
		m.backendLatency.WithLabelValues(provider).Observe(latencyMs)
	}
}

// UpdateBreakerState publishes a circuit breaker state.
func UpdateBreakerState(name string, state int) {
	if m := active(); m != nil {
		m.breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// RecordParseRepair counts a narrative response parsed by a tolerant stage.
func RecordParseRepair(stage string) {
	if m := active(); m != nil {
		m.parseRepairs.WithLabelValues(stage).Inc()
	}
}

// RecordStoreOperation counts a timeline store operation.
func RecordStoreOperation(backend, op, outcome string) {
	if m := active(); m != nil {
		m.storeOperations.WithLabelValues(backend, op, outcome).Inc()
	}
}

// UpdateQueueSize sets the annotation queue size.
func UpdateQueueSize(size int) {
	if m := active(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// RecordQueueEnqueue counts an enqueued annotation job.
func RecordQueueEnqueue() {
	if m := active(); m != nil {
		m.queueEnqueue.Inc()
	}
}

// RecordQueueDequeue counts a dequeued annotation job.
func RecordQueueDequeue() {
	if m := active(); m != nil {
		m.queueDequeue.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected annotation job.
func RecordQueueEnqueueError() {
	if m := active(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

// RecordAnnotationDuplicate counts a deduplicated annotation job.
func RecordAnnotationDuplicate() {
	if m := active(); m != nil {
		m.annotationsDeduped.Inc()
	}
}

// UpdateWorkerCount sets the number of running annotation workers.
func UpdateWorkerCount(count int) {
	if m := active(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

// RecordWorkerError counts a failed annotation job.
func RecordWorkerError() {
	if m := active(); m != nil {
		m.workerErrors.Inc()
	}
}

// RecordAnnotationLatency observes one annotation job.
func RecordAnnotationLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.annotationLatency.Observe(latencyMs)
	}
}

// RecordHTTPRequest records HTTP request metrics.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordHTTPError counts an error response.
func RecordHTTPError(endpoint, errorType, severity string) {
	if m := active(); m != nil {
		m.httpErrors.WithLabelValues(endpoint, errorType, severity).Inc()
	}
}

// GetRegistry returns the custom registry for metrics endpoint.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
