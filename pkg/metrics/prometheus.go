// Package metrics provides Prometheus metrics for the killsync ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultDurationBuckets are the seconds buckets of sync and job durations.
var defaultDurationBuckets = []float64{1, 10, 30, 60, 300, 900, 1800, 3600} //nolint:gochecknoglobals // read-only defaults

// Manager manages all Prometheus metrics for the killsync service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	durationBuckets []float64
	constLabels     map[string]string
	metricPrefix    string
	registry        prometheus.Registerer

	// Upstream fetch metrics
	fetchRequests     *prometheus.CounterVec
	fetchRetries      *prometheus.CounterVec
	fetchFailures     *prometheus.CounterVec
	rateLimitWaits    *prometheus.CounterVec
	rateLimitWaitSecs *prometheus.HistogramVec

	// Resolution metrics
	entityResolutions *prometheus.CounterVec

	// Ingestion metrics
	killmailsStored *prometheus.CounterVec
	eventsSkipped   *prometheus.CounterVec
	attackersStored prometheus.Counter
	pagesFetched    *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	lastSyncUnix    prometheus.Gauge
	syncInProgress  prometheus.Gauge

	// Job queue metrics
	jobsEnqueued *prometheus.CounterVec
	jobQueueLen  prometheus.Gauge
	jobsDone     *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec

	// Store metrics
	storeQueryLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
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
		namespace:       "killsync",
		subsystem:       "ingest",
		latencyBuckets:  prometheus.DefBuckets,
		durationBuckets: defaultDurationBuckets,
		constLabels:     make(map[string]string),
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
	labels := prometheus.Labels(m.constLabels)

	counterVec := func(name, help string, labelNames ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name(name),
			Help:        help,
			ConstLabels: labels,
		}, labelNames)
	}
	histogramVec := func(name, help string, buckets []float64, labelNames ...string) *prometheus.HistogramVec {
		return auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name(name),
			Help:        help,
			Buckets:     buckets,
			ConstLabels: labels,
		}, labelNames)
	}

	m.fetchRequests = counterVec("fetch_requests_total",
		"Total number of upstream HTTP requests by upstream and status code", "upstream", "status_code")
	m.fetchRetries = counterVec("fetch_retries_total",
		"Total number of fetch retries after a transient failure", "upstream")
	m.fetchFailures = counterVec("fetch_failures_total",
		"Total number of fetches that returned no data", "upstream", "reason")
	m.rateLimitWaits = counterVec("rate_limit_waits_total",
		"Total number of sleeps imposed by upstream rate limiting", "upstream", "reason")
	m.rateLimitWaitSecs = histogramVec("rate_limit_wait_seconds",
		"Seconds slept to honor upstream rate limits", []float64{1, 5, 10, 30, 60, 120, 300}, "upstream", "reason")

	m.entityResolutions = counterVec("entity_resolutions_total",
		"Entity name resolutions by kind and outcome (resolved, unknown, cached)", "kind", "outcome")

	m.killmailsStored = counterVec("killmails_stored_total",
		"Killmails newly stored by classification", "kind")
	m.eventsSkipped = counterVec("events_skipped_total",
		"Feed events skipped by reason", "reason")
	m.attackersStored = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("attackers_stored_total"),
		Help:        "Attacker rows newly stored",
		ConstLabels: labels,
	})
	m.pagesFetched = counterVec("pages_fetched_total",
		"Aggregator feed pages fetched by sync mode", "mode")
	m.syncRuns = counterVec("sync_runs_total",
		"Synchronization runs by mode and stop reason", "mode", "stop_reason")
	m.syncDuration = histogramVec("sync_duration_seconds",
		"Synchronization run duration in seconds", m.durationBuckets, "mode")
	m.lastSyncUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("last_sync_unix"),
		Help:        "Unix timestamp of the last finished synchronization run",
		ConstLabels: labels,
	})
	m.syncInProgress = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("job_in_progress"),
		Help:        "1 while an ingestion job is running",
		ConstLabels: labels,
	})

	m.jobsEnqueued = counterVec("jobs_enqueued_total",
		"Job submissions by kind and outcome (accepted, full, closed)", "kind", "outcome")
	m.jobQueueLen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("job_queue_length"),
		Help:        "Jobs waiting for the worker",
		ConstLabels: labels,
	})
	m.jobsDone = counterVec("jobs_processed_total",
		"Jobs executed by the worker by kind and status", "kind", "status")
	m.jobDuration = histogramVec("job_duration_seconds",
		"Job execution time in seconds", m.durationBuckets, "kind")

	m.storeQueryLatency = histogramVec("store_query_latency_milliseconds",
		"Store operation latency in milliseconds", m.latencyBuckets, "op")
	m.storeErrors = counterVec("store_errors_total",
		"Store operation errors", "op")

	m.httpRequests = counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.latencyBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
}

// Upstream Fetch Metrics Functions.

// RecordFetchRequest counts one upstream HTTP exchange.
func RecordFetchRequest(upstream, statusCode string) {
	globalManager.fetchRequests.WithLabelValues(upstream, statusCode).Inc()
}

// RecordFetchRetry counts one retry after a transient failure.
func RecordFetchRetry(upstream string) {
	globalManager.fetchRetries.WithLabelValues(upstream).Inc()
}

// RecordFetchFailure counts a fetch that ended without data.
func RecordFetchFailure(upstream, reason string) {
	globalManager.fetchFailures.WithLabelValues(upstream, reason).Inc()
}

// RecordRateLimitWait records one rate-limit sleep and its length.
func RecordRateLimitWait(upstream, reason string, wait time.Duration) {
	globalManager.rateLimitWaits.WithLabelValues(upstream, reason).Inc()
	globalManager.rateLimitWaitSecs.WithLabelValues(upstream, reason).Observe(wait.Seconds())
}

// RecordEntityResolution counts a name resolution outcome.
func RecordEntityResolution(kind, outcome string) {
	globalManager.entityResolutions.WithLabelValues(kind, outcome).Inc()
}

// Ingestion Metrics Functions.

// RecordKillmailStored counts a newly stored killmail.
func RecordKillmailStored(kind string) {
	globalManager.killmailsStored.WithLabelValues(kind).Inc()
}

// RecordEventSkipped counts a feed event that was not stored.
func RecordEventSkipped(reason string) {
	globalManager.eventsSkipped.WithLabelValues(reason).Inc()
}

// RecordAttackersStored adds newly stored attacker rows.
func RecordAttackersStored(n int) {
	globalManager.attackersStored.Add(float64(n))
}

// RecordPageFetched counts one aggregator page.
func RecordPageFetched(mode string) {
	globalManager.pagesFetched.WithLabelValues(mode).Inc()
}

// RecordSyncRun records a finished synchronization run.
func RecordSyncRun(mode, stopReason string, duration time.Duration) {
	globalManager.syncRuns.WithLabelValues(mode, stopReason).Inc()
	globalManager.syncDuration.WithLabelValues(mode).Observe(duration.Seconds())
	globalManager.lastSyncUnix.Set(float64(time.Now().Unix()))
}

// SetJobInProgress flags whether an ingestion job is running.
func SetJobInProgress(running bool) {
	if running {
		globalManager.syncInProgress.Set(1)
		return
	}
	globalManager.syncInProgress.Set(0)
}

// Store Metrics Functions.

// Job Queue Metrics Functions.

// RecordJobEnqueue counts one job submission.
func RecordJobEnqueue(kind, outcome string) {
	globalManager.jobsEnqueued.WithLabelValues(kind, outcome).Inc()
}

// SetJobQueueLength sets the number of waiting jobs.
func SetJobQueueLength(n int) {
	globalManager.jobQueueLen.Set(float64(n))
}

// RecordJobProcessed counts one executed job and its duration.
func RecordJobProcessed(kind, status string, d time.Duration) {
	globalManager.jobsDone.WithLabelValues(kind, status).Inc()
	globalManager.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordStoreQueryLatency records store operation latency.
func RecordStoreQueryLatency(op string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
