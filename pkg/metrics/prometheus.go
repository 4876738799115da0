// Package metrics provides Prometheus metrics for the bikeflow pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Quality scoring
	recordsScored    *prometheus.CounterVec
	penaltyPoints    *prometheus.HistogramVec
	gateDecisions    *prometheus.CounterVec
	duplicateTripIDs prometheus.Counter

	// Pipeline stages
	stageLatency *prometheus.HistogramVec
	stageRetries *prometheus.CounterVec
	runOutcomes  *prometheus.CounterVec
	goldRows     *prometheus.CounterVec
	bronzeLag    prometheus.Gauge

	// Object store
	storeErrors *prometheus.CounterVec

	// Historical archives
	archives *prometheus.CounterVec

	// Archive job queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Archive workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Admin HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Firehose
	eventsGenerated *prometheus.CounterVec
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
		namespace:        "bikeflow",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
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

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all metric definitions
	auto := promauto.With(m.registry)

	m.recordsScored = auto.NewCounterVec(
		m.counterOpts("records_scored_total", "Total number of trip records scored, by quality band"),
		[]string{"band", "source_type"},
	)
	m.penaltyPoints = auto.NewHistogramVec(
		m.histogramOpts("penalty_points", "Per-record capped penalty points by pool",
			[]float64{0, 2, 5, 10, 15, 20, 25, 30, 40}),
		[]string{"pool"},
	)
	m.gateDecisions = auto.NewCounterVec(
		m.counterOpts("gate_decisions_total", "Quality gate decisions by outcome"),
		[]string{"decision", "source_type"},
	)
	m.duplicateTripIDs = auto.NewCounter(
		m.counterOpts("duplicate_trip_ids_total", "Trip ids seen more than once within a scored batch"),
	)

	m.stageLatency = auto.NewHistogramVec(
		m.histogramOpts("stage_latency_milliseconds", "Pipeline stage latency in milliseconds", m.histogramBuckets),
		[]string{"stage"},
	)
	m.stageRetries = auto.NewCounterVec(
		m.counterOpts("stage_retries_total", "Stage attempts retried after a transient store error"),
		[]string{"stage"},
	)
	m.runOutcomes = auto.NewCounterVec(
		m.counterOpts("run_outcomes_total", "Pipeline run outcomes by flow and status"),
		[]string{"flow", "status"},
	)
	m.goldRows = auto.NewCounterVec(
		m.counterOpts("gold_rows_written_total", "Rows written to gold tables after upsert"),
		[]string{"table"},
	)
	m.bronzeLag = auto.NewGauge(
		m.gaugeOpts("bronze_lag_seconds", "Age of the newest bronze object in seconds"),
	)

	m.storeErrors = auto.NewCounterVec(
		m.counterOpts("store_errors_total", "Object store operation errors by operation"),
		[]string{"op"},
	)

	m.archives = auto.NewCounterVec(
		m.counterOpts("archives_total", "Historical archives handled by outcome"),
		[]string{"outcome"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the archive job queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum archive job queue capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of active archive workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Archive job processing latency in milliseconds",
			m.histogramBuckets),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of archive job failures"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of admin HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "Admin HTTP request duration in milliseconds",
			m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.eventsGenerated = auto.NewCounterVec(
		m.counterOpts("firehose_events_total", "Synthetic bronze events written by variant"),
		[]string{"variant"},
	)
}

// RecordRecordScored counts one scored record in its band.
func RecordRecordScored(band, sourceType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.recordsScored.WithLabelValues(band, sourceType).Inc()
}

// RecordPenalty observes a capped per-record penalty for one pool.
func RecordPenalty(pool string, points float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.penaltyPoints.WithLabelValues(pool).Observe(points)
}

// RecordGateDecision counts a quality gate decision.
func RecordGateDecision(admitted bool, sourceType string) {
	if !globalManager.enabled {
		return
	}
	decision := "blocked"
	if admitted {
		decision = "admitted"
	}
	globalManager.gateDecisions.WithLabelValues(decision, sourceType).Inc()
}

// RecordDuplicateTripIDs adds to the in-batch duplicate trip id counter.
func RecordDuplicateTripIDs(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.duplicateTripIDs.Add(float64(n))
}

// RecordStageLatency records stage latency in milliseconds.
func RecordStageLatency(stage string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordStageRetry counts a retried stage attempt.
func RecordStageRetry(stage string) {
	if !globalManager.enabled {
		return
	}
	globalManager.stageRetries.WithLabelValues(stage).Inc()
}

// RecordRunOutcome counts a finished pipeline run.
func RecordRunOutcome(flow, status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.runOutcomes.WithLabelValues(flow, status).Inc()
}

// RecordGoldRows adds to the rows written for a gold table.
func RecordGoldRows(table string, rows int) {
	if !globalManager.enabled {
		return
	}
	globalManager.goldRows.WithLabelValues(table).Add(float64(rows))
}

// UpdateBronzeLag sets the age of the newest bronze object.
func UpdateBronzeLag(seconds float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.bronzeLag.Set(seconds)
}

// RecordStoreError counts an object store failure.
func RecordStoreError(op string) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordArchive counts a historical archive outcome (staged, skipped, failed, processed).
func RecordArchive(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.archives.WithLabelValues(outcome).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records archive job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordEventGenerated counts one synthetic firehose event.
func RecordEventGenerated(variant string) {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsGenerated.WithLabelValues(variant).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
