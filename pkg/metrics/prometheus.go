// Package metrics provides Prometheus metrics for the mastery harvesting service.
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

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace       string
	subsystem       string
	metricPrefix    string
	customLabels    map[string]string
	refreshInterval time.Duration
	registry        prometheus.Registerer

	// Run metrics
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastSuccessUnix *prometheus.GaugeVec
	runsSkipped     *prometheus.CounterVec

	// Stage metrics
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	// Batch runner metrics
	batchSlices       *prometheus.CounterVec
	batchRetries      *prometheus.CounterVec
	batchSliceFailed  *prometheus.CounterVec
	batchTaskDuration prometheus.Histogram

	// Upstream metrics
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	// Crawl metrics
	pagesFetched   *prometheus.CounterVec
	pageFailures   *prometheus.CounterVec
	rowsProcessed  *prometheus.CounterVec
	rowErrors      *prometheus.CounterVec
	crawlLastPages *prometheus.GaugeVec

	// Store write metrics
	recordsInserted  *prometheus.CounterVec
	recordsUpdated   *prometheus.CounterVec
	recordsConflicts *prometheus.CounterVec
	historyUpserts   prometheus.Counter
	recordsRepaired  prometheus.Counter
	catalogSize      prometheus.Gauge

	// Repository latency
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Trigger queue metrics
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueCoalesced  prometheus.Counter
	queueRejections prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
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
		namespace:       "mastery",
		subsystem:       "pipeline",
		refreshInterval: defaultRefreshInterval,
		customLabels:    make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("runs_total"),
		Help:        "Total number of pipeline runs by job and status",
		ConstLabels: m.customLabels,
	}, []string{"job", "status"})

	m.runDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("run_duration_seconds"),
		Help:        "Pipeline run duration in seconds",
		Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		ConstLabels: m.customLabels,
	}, []string{"job"})

	m.lastSuccessUnix = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("last_success_unix"),
		Help:        "Unix timestamp of the last successful run per job",
		ConstLabels: m.customLabels,
	}, []string{"job"})

	m.runsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("runs_skipped_total"),
		Help:        "Runs skipped because another instance held the run lock",
		ConstLabels: m.customLabels,
	}, []string{"job"})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("stage_duration_seconds"),
		Help:        "Duration of each pipeline stage in seconds",
		Buckets:     []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		ConstLabels: m.customLabels,
	}, []string{"stage"})

	m.stageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("stage_errors_total"),
		Help:        "Total number of failed pipeline stages",
		ConstLabels: m.customLabels,
	}, []string{"stage"})

	m.batchSlices = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("batch_slices_total"),
		Help:        "Total number of batch slices started",
		ConstLabels: m.customLabels,
	}, []string{"runner"})

	m.batchRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("batch_retries_total"),
		Help:        "Total number of whole-slice retries",
		ConstLabels: m.customLabels,
	}, []string{"runner"})

	m.batchSliceFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("batch_slices_dropped_total"),
		Help:        "Slices that exhausted their retries and contributed no results",
		ConstLabels: m.customLabels,
	}, []string{"runner"})

	m.batchTaskDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("batch_slice_latency_milliseconds"),
		Help:        "Latency of one slice attempt in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.customLabels,
	})

	m.upstreamRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("upstream_requests_total"),
		Help:        "Requests sent to third-party endpoints by source and outcome",
		ConstLabels: m.customLabels,
	}, []string{"source", "outcome"})

	m.upstreamLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("upstream_latency_milliseconds"),
		Help:        "Third-party request latency in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: m.customLabels,
	}, []string{"source"})

	m.pagesFetched = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("ranking_pages_total"),
		Help:        "Ranking pages consumed per mastery tier",
		ConstLabels: m.customLabels,
	}, []string{"tier"})

	m.pageFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("ranking_page_failures_total"),
		Help:        "Ranking page attempts that failed per mastery tier",
		ConstLabels: m.customLabels,
	}, []string{"tier"})

	m.rowsProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("ranking_rows_total"),
		Help:        "Ranking rows processed per mastery tier",
		ConstLabels: m.customLabels,
	}, []string{"tier"})

	m.rowErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("ranking_row_errors_total"),
		Help:        "Ranking rows whose store writes failed",
		ConstLabels: m.customLabels,
	}, []string{"tier"})

	m.crawlLastPages = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("ranking_last_page_count"),
		Help:        "Number of pages consumed by the last crawl per tier",
		ConstLabels: m.customLabels,
	}, []string{"tier"})

	m.recordsInserted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("records_inserted_total"),
		Help:        "Records inserted per collection",
		ConstLabels: m.customLabels,
	}, []string{"collection"})

	m.recordsUpdated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("records_updated_total"),
		Help:        "Records updated per collection",
		ConstLabels: m.customLabels,
	}, []string{"collection"})

	m.recordsConflicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("records_conflicts_total"),
		Help:        "Duplicate-key conflicts tolerated during bulk insertion",
		ConstLabels: m.customLabels,
	}, []string{"collection"})

	m.historyUpserts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("history_upserts_total"),
		Help:        "History snapshot upserts",
		ConstLabels: m.customLabels,
	})

	m.recordsRepaired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("records_repaired_total"),
		Help:        "Catalog records backfilled from the reference catalog",
		ConstLabels: m.customLabels,
	})

	m.catalogSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("catalog_records"),
		Help:        "Number of records in the canonical catalog",
		ConstLabels: m.customLabels,
	})

	m.repositoryUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("repository_update_latency_milliseconds"),
		Help:        "Repository write latency in milliseconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: m.customLabels,
	})

	m.repositoryQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("repository_query_latency_milliseconds"),
		Help:        "Repository query latency in milliseconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: m.customLabels,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("trigger_queue_size"),
		Help:        "Pending run triggers",
		ConstLabels: m.customLabels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("trigger_queue_capacity"),
		Help:        "Maximum number of pending run triggers",
		ConstLabels: m.customLabels,
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("trigger_enqueued_total"),
		Help:        "Run triggers accepted",
		ConstLabels: m.customLabels,
	})

	m.queueCoalesced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("trigger_coalesced_total"),
		Help:        "Run triggers merged into an already pending trigger for the same job",
		ConstLabels: m.customLabels,
	})

	m.queueRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("trigger_rejected_total"),
		Help:        "Run triggers rejected because the queue was full or closed",
		ConstLabels: m.customLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Total number of errors by component",
		ConstLabels: m.customLabels,
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "Total number of errors by endpoint",
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "error_type"})
}

// Run metrics.

// RecordRun records a finished run with its status ("ok", "partial", "failed").
func RecordRun(job, status string, d time.Duration) {
	globalManager.runsTotal.WithLabelValues(job, status).Inc()
	globalManager.runDuration.WithLabelValues(job).Observe(d.Seconds())
	if status == "ok" {
		globalManager.lastSuccessUnix.WithLabelValues(job).Set(float64(time.Now().Unix()))
	}
}

// RecordRunSkipped counts a run that did not acquire the run lock.
func RecordRunSkipped(job string) {
	globalManager.runsSkipped.WithLabelValues(job).Inc()
}

// RecordStage records a stage duration and whether it failed.
func RecordStage(stage string, d time.Duration, failed bool) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if failed {
		globalManager.stageErrors.WithLabelValues(stage).Inc()
	}
}

// Batch runner metrics.

// RecordBatchSlice counts a slice start.
func RecordBatchSlice(runner string) {
	globalManager.batchSlices.WithLabelValues(runner).Inc()
}

// RecordBatchRetry counts a whole-slice retry.
func RecordBatchRetry(runner string) {
	globalManager.batchRetries.WithLabelValues(runner).Inc()
}

// RecordBatchSliceDropped counts a slice that exhausted its retries.
func RecordBatchSliceDropped(runner string) {
	globalManager.batchSliceFailed.WithLabelValues(runner).Inc()
}

// RecordBatchSliceLatency records one slice attempt latency.
func RecordBatchSliceLatency(latencyMs float64) {
	globalManager.batchTaskDuration.Observe(latencyMs)
}

// Upstream metrics.

// RecordUpstreamRequest records one third-party request.
func RecordUpstreamRequest(source, outcome string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(source, outcome).Inc()
	globalManager.upstreamLatency.WithLabelValues(source).Observe(latencyMs)
}

// Crawl metrics.

// RecordPageFetched counts a consumed ranking page.
func RecordPageFetched(tier string) {
	globalManager.pagesFetched.WithLabelValues(tier).Inc()
}

// RecordPageFailure counts a failed ranking page attempt.
func RecordPageFailure(tier string) {
	globalManager.pageFailures.WithLabelValues(tier).Inc()
}

// RecordRowsProcessed adds processed ranking rows.
func RecordRowsProcessed(tier string, n int) {
	globalManager.rowsProcessed.WithLabelValues(tier).Add(float64(n))
}

// RecordRowError counts a ranking row whose writes failed.
func RecordRowError(tier string) {
	globalManager.rowErrors.WithLabelValues(tier).Inc()
}

// UpdateCrawlPages sets the page count of the last crawl.
func UpdateCrawlPages(tier string, pages int) {
	globalManager.crawlLastPages.WithLabelValues(tier).Set(float64(pages))
}

// Store write metrics.

// RecordInserted adds inserted records for a collection.
func RecordInserted(collection string, n int) {
	globalManager.recordsInserted.WithLabelValues(collection).Add(float64(n))
}

// RecordUpdated adds updated records for a collection.
func RecordUpdated(collection string, n int) {
	globalManager.recordsUpdated.WithLabelValues(collection).Add(float64(n))
}

// RecordConflicts adds tolerated duplicate-key conflicts for a collection.
func RecordConflicts(collection string, n int) {
	globalManager.recordsConflicts.WithLabelValues(collection).Add(float64(n))
}

// RecordHistoryUpsert counts a history snapshot upsert.
func RecordHistoryUpsert() {
	globalManager.historyUpserts.Inc()
}

// RecordRepaired adds backfilled catalog records.
func RecordRepaired(n int) {
	globalManager.recordsRepaired.Add(float64(n))
}

// UpdateCatalogSize sets the current catalog size.
func UpdateCatalogSize(n int) {
	globalManager.catalogSize.Set(float64(n))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Trigger queue metrics.

// UpdateQueueSize sets the current number of pending triggers.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the trigger queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted trigger.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueCoalesced counts a trigger merged into a pending one.
func RecordQueueCoalesced() {
	globalManager.queueCoalesced.Inc()
}

// RecordQueueRejected counts a rejected trigger.
func RecordQueueRejected() {
	globalManager.queueRejections.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it once at start-up, before any component records metrics
// or captures GetRegistry.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// RefreshInterval returns the period for refreshing derived gauges.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
