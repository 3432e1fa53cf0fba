// Package metrics provides Prometheus metrics for the kairos affinity engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the kairos service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pair scoring
	pairsScored    *prometheus.CounterVec
	pairsUnchanged *prometheus.CounterVec
	pairsSkipped   *prometheus.CounterVec
	pairsDeferred  *prometheus.CounterVec
	scoringLatency prometheus.Histogram
	matchedDepth   *prometheus.HistogramVec

	// Aggregation and leaderboard
	aggregationLatency prometheus.Histogram
	subjectsRebuilt    *prometheus.CounterVec
	aggregateOutcomes  *prometheus.CounterVec
	leaderboardSize    *prometheus.GaugeVec
	rebuildDuration    *prometheus.HistogramVec
	subjectsTotal      prometheus.Gauge

	// Composite and tuning
	compositeComputed  prometheus.Counter
	compositeRejected  *prometheus.CounterVec
	tunerCandidates    *prometheus.CounterVec
	tunerBestMetric    prometheus.Gauge
	weightPromotions   prometheus.Counter
	activeWeightsValid prometheus.Gauge

	// Store resilience
	storeRequests     *prometheus.CounterVec
	storeRetries      *prometheus.CounterVec
	storeLatency      *prometheus.HistogramVec
	storeBreakerState *prometheus.GaugeVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "kairos",
		subsystem:        "affinity",
		histogramBuckets: prometheus.ExponentialBuckets(0.05, 2, 16), // 50µs .. ~1.6s
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	depthBuckets := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	m.pairsScored = m.counterVec("pairs_scored_total", "Pair scores written or changed in the store", "engine")
	m.pairsUnchanged = m.counterVec("pairs_unchanged_total", "Pair scores already present with the same result", "engine")
	m.pairsSkipped = m.counterVec("pairs_skipped_total", "Pairs refused for incomplete input", "engine")
	m.pairsDeferred = m.counterVec("pairs_deferred_total", "Pairs deferred because the store was unavailable", "engine")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Pairwise resonance scoring latency in milliseconds", m.histogramBuckets)
	m.matchedDepth = m.histogramVec("matched_depth", "Distribution of matched layer depth", depthBuckets, "engine")

	m.aggregationLatency = m.histogram("aggregation_latency_milliseconds", "Subject aggregation latency in milliseconds", m.histogramBuckets)
	m.subjectsRebuilt = m.counterVec("subjects_rebuilt_total", "Subject aggregates finalized by rebuild or read", "engine")
	m.aggregateOutcomes = m.counterVec("aggregate_outcomes_total", "Aggregates by applied adjustment (decayed, capped, none, empty)", "engine", "outcome")
	m.leaderboardSize = m.gaugeVec("leaderboard_size", "Ranked subjects per engine kind", "engine")
	m.rebuildDuration = m.histogramVec("rebuild_duration_seconds", "Full leaderboard rebuild duration in seconds", prometheus.ExponentialBuckets(0.01, 4, 10), "engine", "status")
	m.subjectsTotal = m.gauge("subjects_total", "Subjects with a decomposed time record")

	m.compositeComputed = m.counter("composite_computed_total", "Composite scores computed")
	m.compositeRejected = m.counterVec("composite_rejected_total", "Composite computations refused", "reason")
	m.tunerCandidates = m.counterVec("tuner_candidates_total", "Weight vectors evaluated by the tuner", "strategy")
	m.tunerBestMetric = m.gauge("tuner_best_metric", "Best metric achieved by the last tuning run")
	m.weightPromotions = m.counter("weight_promotions_total", "Weight vectors promoted into live use")
	m.activeWeightsValid = m.gauge("active_weights_valid", "1 when the active weight vector passes validation")

	m.storeRequests = m.counterVec("store_requests_total", "Store calls by operation and result", "op", "result")
	m.storeRetries = m.counterVec("store_retries_total", "Store call retries by operation", "op")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store call latency in milliseconds", m.histogramBuckets, "op")
	m.storeBreakerState = m.gaugeVec("store_breaker_state", "Store circuit breaker state (0 closed, 1 half-open, 2 open)", "name")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the pair job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the pair job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of active scoring workers")
	m.workerMessagesPerSecond = m.gauge("worker_jobs_per_second", "Average jobs processed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Error rate by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Error rate by type", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// Pair Scoring Metrics Functions.

// RecordPairScored counts a pair score that was inserted or changed.
func RecordPairScored(engine string, depth int) {
	globalManager.pairsScored.WithLabelValues(engine).Inc()
	globalManager.matchedDepth.WithLabelValues(engine).Observe(float64(depth))
}

// RecordPairUnchanged counts an idempotent no-op upsert.
func RecordPairUnchanged(engine string) {
	globalManager.pairsUnchanged.WithLabelValues(engine).Inc()
}

// RecordPairSkipped counts a pair refused for incomplete input.
func RecordPairSkipped(engine string) {
	globalManager.pairsSkipped.WithLabelValues(engine).Inc()
}

// RecordPairDeferred counts a pair deferred by store unavailability.
func RecordPairDeferred(engine string) {
	globalManager.pairsDeferred.WithLabelValues(engine).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// Aggregation Metrics Functions.

// RecordAggregationLatency records a single subject aggregation latency.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// RecordSubjectRebuilt counts a finalized aggregate with its adjustment outcome.
func RecordSubjectRebuilt(engine, outcome string) {
	globalManager.subjectsRebuilt.WithLabelValues(engine).Inc()
	globalManager.aggregateOutcomes.WithLabelValues(engine, outcome).Inc()
}

// UpdateLeaderboardSize sets the number of ranked subjects for an engine kind.
func UpdateLeaderboardSize(engine string, size int) {
	globalManager.leaderboardSize.WithLabelValues(engine).Set(float64(size))
}

// RecordRebuildDuration records a rebuild run duration with its final status.
func RecordRebuildDuration(engine, status string, seconds float64) {
	globalManager.rebuildDuration.WithLabelValues(engine, status).Observe(seconds)
}

// UpdateSubjectsTotal sets the number of known subjects.
func UpdateSubjectsTotal(count int) {
	globalManager.subjectsTotal.Set(float64(count))
}

// Composite and Tuning Metrics Functions.

// RecordCompositeComputed counts a successful composite computation.
func RecordCompositeComputed() {
	globalManager.compositeComputed.Inc()
}

// RecordCompositeRejected counts a refused composite computation.
func RecordCompositeRejected(reason string) {
	globalManager.compositeRejected.WithLabelValues(reason).Inc()
}

// RecordTunerCandidates counts weight vectors evaluated by a tuning run.
func RecordTunerCandidates(strategy string, count int) {
	globalManager.tunerCandidates.WithLabelValues(strategy).Add(float64(count))
}

// UpdateTunerBestMetric sets the best metric of the last tuning run.
func UpdateTunerBestMetric(metric float64) {
	globalManager.tunerBestMetric.Set(metric)
}

// RecordWeightPromotion counts a promoted weight vector.
func RecordWeightPromotion() {
	globalManager.weightPromotions.Inc()
	globalManager.activeWeightsValid.Set(1)
}

// Store Metrics Functions.

// RecordStoreRequest records a store call result and latency.
func RecordStoreRequest(op, result string, latencyMs float64) {
	globalManager.storeRequests.WithLabelValues(op, result).Inc()
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreRetry counts a retried store call.
func RecordStoreRetry(op string) {
	globalManager.storeRetries.WithLabelValues(op).Inc()
}

// UpdateBreakerState sets the breaker state gauge.
func UpdateBreakerState(name string, state int) {
	globalManager.storeBreakerState.WithLabelValues(name).Set(float64(state))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average jobs processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// Init rebuilds the global manager from opts on a fresh registry. It must run
// before metrics are served; GetRegistry returns the new registry afterwards.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
