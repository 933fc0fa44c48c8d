// Package metrics provides Prometheus metrics for the training assignment job.
//
// A run is a short-lived batch process, so besides the registry served by the
// status server the collected values can be exported to a node_exporter
// textfile or pushed to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Manager manages all Prometheus metrics for the job.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer
	gatherer         prometheus.Gatherer

	// Run Metrics
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Gauge
	lastRunTimestamp   prometheus.Gauge
	lastRunAttempted   prometheus.Gauge
	lastRunSucceeded   prometheus.Gauge
	lastRunFailed      prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	modulesLoaded      prometheus.Gauge
	personnelLoaded    prometheus.Gauge
	assignmentsCreated *prometheus.CounterVec

	// Feed Metrics
	feedRequests *prometheus.CounterVec

	// Submission Metrics
	submissionsTotal  *prometheus.CounterVec
	submissionLatency prometheus.Histogram
	submissionRetries prometheus.Counter

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Repository Metrics
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryRunsTotal    prometheus.Gauge

	// HTTP Metrics (status server)
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
		namespace:        "trainingbot",
		subsystem:        "run",
		histogramBuckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
		gatherer:         prometheus.DefaultGatherer,
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

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_total",
		Help:        "Total number of runs by outcome (completed, partial, aborted)",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.runDuration = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_duration_seconds",
		Help:        "Wall time of the most recent run",
		ConstLabels: m.constLabels,
	})

	m.lastRunTimestamp = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_finished_timestamp_seconds",
		Help:        "Unix time the most recent run finished",
		ConstLabels: m.constLabels,
	})

	m.lastRunAttempted = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_attempted",
		Help:        "Assignments attempted by the most recent run",
		ConstLabels: m.constLabels,
	})

	m.lastRunSucceeded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_succeeded",
		Help:        "Assignments submitted successfully by the most recent run",
		ConstLabels: m.constLabels,
	})

	m.lastRunFailed = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_failed",
		Help:        "Assignments that failed in the most recent run",
		ConstLabels: m.constLabels,
	})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_duration_milliseconds",
		Help:        "Duration of each run stage in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.modulesLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "content",
		Name:        "modules_loaded",
		Help:        "Training modules loaded by the most recent run",
		ConstLabels: m.constLabels,
	})

	m.personnelLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "feed",
		Name:        "personnel_loaded",
		Help:        "Personnel records fetched by the most recent run",
		ConstLabels: m.constLabels,
	})

	m.assignmentsCreated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "randomizer",
		Name:        "assignments_total",
		Help:        "Assignments produced by the randomizer, by policy",
		ConstLabels: m.constLabels,
	}, []string{"policy"})

	m.feedRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "feed",
		Name:        "requests_total",
		Help:        "Personnel feed requests by result",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.submissionsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "submitter",
		Name:        "submissions_total",
		Help:        "Form submissions by result (succeeded, rejected, transport, cancelled)",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.submissionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "submitter",
		Name:        "latency_milliseconds",
		Help:        "Histogram of single form submission latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.submissionRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "submitter",
		Name:        "retries_total",
		Help:        "Submission attempts repeated after a transport error",
		ConstLabels: m.constLabels,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "queue",
		Name:        "size",
		Help:        "Assignments waiting for a submission worker",
		ConstLabels: m.constLabels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "queue",
		Name:        "capacity",
		Help:        "Maximum capacity of the assignment queue",
		ConstLabels: m.constLabels,
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "queue",
		Name:        "enqueued_total",
		Help:        "Total number of assignments enqueued",
		ConstLabels: m.constLabels,
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "queue",
		Name:        "dequeued_total",
		Help:        "Total number of assignments dequeued",
		ConstLabels: m.constLabels,
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "queue",
		Name:        "enqueue_errors_total",
		Help:        "Total number of enqueue errors (closed or full queue)",
		ConstLabels: m.constLabels,
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "worker",
		Name:        "active",
		Help:        "Number of running submission workers",
		ConstLabels: m.constLabels,
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "worker",
		Name:        "processing_latency_milliseconds",
		Help:        "Time a worker spends on one assignment including retries",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "worker",
		Name:        "errors_total",
		Help:        "Assignments a worker finished with an error",
		ConstLabels: m.constLabels,
	})

	m.repositoryQueryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "repository",
		Name:        "query_duration_milliseconds",
		Help:        "History store operation duration in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
		ConstLabels: m.constLabels,
	}, []string{"op"})

	m.repositoryRunsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "repository",
		Name:        "runs",
		Help:        "Runs recorded in the history store",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "requests_total",
		Help:        "Status server requests",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "request_duration_milliseconds",
		Help:        "Status server request duration in milliseconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "errors",
		Name:        "by_component_total",
		Help:        "Errors by component and kind",
		ConstLabels: m.constLabels,
	}, []string{"component", "kind"})
}

// Manager methods. The package-level functions below delegate to the global manager.

// ObserveRun records the summary of a finished run.
func (m *Manager) ObserveRun(outcome string, attempted, succeeded, failed int, seconds float64, finishedUnix float64) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Set(seconds)
	m.lastRunTimestamp.Set(finishedUnix)
	m.lastRunAttempted.Set(float64(attempted))
	m.lastRunSucceeded.Set(float64(succeeded))
	m.lastRunFailed.Set(float64(failed))
}

// RecordStage observes the duration of a run stage.
func (m *Manager) RecordStage(stage string, ms float64) {
	m.stageDuration.WithLabelValues(stage).Observe(ms)
}

// RecordSubmission counts one finished submission and its latency.
func (m *Manager) RecordSubmission(result string, ms float64) {
	m.submissionsTotal.WithLabelValues(result).Inc()
	m.submissionLatency.Observe(ms)
}

// ObserveRun records the summary of a finished run.
func ObserveRun(outcome string, attempted, succeeded, failed int, seconds float64, finishedUnix float64) {
	globalManager.ObserveRun(outcome, attempted, succeeded, failed, seconds, finishedUnix)
}

// RecordStage observes the duration of a run stage in milliseconds.
func RecordStage(stage string, ms float64) {
	globalManager.RecordStage(stage, ms)
}

// UpdateModulesLoaded sets the number of modules loaded.
func UpdateModulesLoaded(n int) {
	globalManager.modulesLoaded.Set(float64(n))
}

// UpdatePersonnelLoaded sets the number of personnel fetched.
func UpdatePersonnelLoaded(n int) {
	globalManager.personnelLoaded.Set(float64(n))
}

// RecordAssignments counts assignments produced under a policy.
func RecordAssignments(policy string, n int) {
	globalManager.assignmentsCreated.WithLabelValues(policy).Add(float64(n))
}

// RecordFeedRequest counts one feed request by result (ok, auth, unavailable, format).
func RecordFeedRequest(result string) {
	globalManager.feedRequests.WithLabelValues(result).Inc()
}

// RecordSubmission counts one finished submission and its latency in milliseconds.
func RecordSubmission(result string, ms float64) {
	globalManager.RecordSubmission(result, ms)
}

// RecordSubmissionRetry counts a repeated submission attempt.
func RecordSubmissionRetry() {
	globalManager.submissionRetries.Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the number of queued assignments.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
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

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Repository Metrics Functions.

// RecordRepositoryQueryLatency observes a history store operation in milliseconds.
func RecordRepositoryQueryLatency(op string, ms float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(op).Observe(ms)
}

// UpdateRepositoryRunsTotal sets the number of runs in the history store.
func UpdateRepositoryRunsTotal(n int) {
	globalManager.repositoryRunsTotal.Set(float64(n))
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

// RecordErrorByComponent records an error with component and kind labels.
func RecordErrorByComponent(component, kind string) {
	globalManager.errorRateByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the current registry to path in the text exposition
// format, suitable for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	return globalManager.WriteTextfile(path)
}

// WriteTextfile writes the manager's registry to path.
func (m *Manager) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}

// Push sends the current registry to a Pushgateway under job.
func Push(ctx context.Context, url, job string) error {
	return globalManager.Push(ctx, url, job)
}

// Push sends the manager's registry to a Pushgateway under job.
func (m *Manager) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}
