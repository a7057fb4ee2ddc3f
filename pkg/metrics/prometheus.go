// Package metrics provides Prometheus metrics for the rollcall attendance service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultDistanceBuckets cover both metrics: euclidean distances between
// unit-ish descriptors rarely exceed 2, cosine distances never do.
var defaultDistanceBuckets = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1, 1.5, 2} //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	distanceBuckets []float64
	registry        prometheus.Registerer

	// Recognition
	framesProcessed   prometheus.Counter
	framesDropped     prometheus.Counter
	facesDetected     prometheus.Histogram
	matchOutcomes     *prometheus.CounterVec
	matchDistance     prometheus.Histogram
	tickLatency       prometheus.Histogram
	extractionLatency prometheus.Histogram

	// Attendance
	attendanceMarked       prometheus.Counter
	attendanceDeduplicated prometheus.Counter
	attendanceManual       prometheus.Counter
	ledgerRecords          prometheus.Gauge

	// Enrollment
	enrollments    *prometheus.CounterVec
	activeSessions prometheus.Gauge

	// Gallery
	gallerySize                   prometheus.Gauge
	galleryUpdateLatency          prometheus.Histogram
	gallerySnapshotRebuild        prometheus.Histogram
	gallerySnapshotCount          prometheus.Counter
	gallerySnapshotLastDurationMs prometheus.Gauge

	// Side effects
	journalErrors *prometheus.CounterVec
	publishes     *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "rollcall",
		subsystem:       "attendance",
		latencyBuckets:  prometheus.DefBuckets,
		distanceBuckets: defaultDistanceBuckets,
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.framesProcessed = m.counter("frames_processed_total", "Total number of frames run through recognition")
	m.framesDropped = m.counter("frames_dropped_total", "Frames dropped by a periodic loop because the queue was full")
	m.facesDetected = m.histogram("faces_per_frame", "Number of faces the extractor found per frame",
		[]float64{0, 1, 2, 3, 5, 8, 13})
	m.matchOutcomes = m.counterVec("match_outcomes_total", "Recognition outcomes per face", "outcome")
	m.matchDistance = m.histogram("match_distance", "Distance from probe to nearest gallery entry", m.distanceBuckets)
	m.tickLatency = m.histogram("tick_latency_milliseconds", "End-to-end latency of one recognition tick", m.latencyBuckets)
	m.extractionLatency = m.histogram("extraction_latency_milliseconds", "Descriptor extraction latency", m.latencyBuckets)

	m.attendanceMarked = m.counter("marked_total", "Attendance records appended by recognition")
	m.attendanceDeduplicated = m.counter("deduplicated_total", "Recognitions suppressed by the cooldown window")
	m.attendanceManual = m.counter("manual_total", "Attendance records appended manually")
	m.ledgerRecords = m.gauge("ledger_records", "Attendance records currently held in the ledger")

	m.enrollments = m.counterVec("enrollments_total", "Enrollment sessions by result", "result")
	m.activeSessions = m.gauge("enrollment_sessions_active", "Enrollment sessions currently open")

	m.gallerySize = m.gauge("gallery_size", "Identities in the current gallery snapshot")
	m.galleryUpdateLatency = m.histogram("gallery_update_latency_milliseconds", "Gallery write latency", m.latencyBuckets)
	m.gallerySnapshotRebuild = m.histogram("gallery_snapshot_rebuild_duration_milliseconds",
		"Gallery snapshot rebuild duration", m.latencyBuckets)
	m.gallerySnapshotCount = m.counter("gallery_snapshot_count_total", "Gallery snapshots published")
	m.gallerySnapshotLastDurationMs = m.gauge("gallery_snapshot_last_duration_milliseconds",
		"Last gallery snapshot rebuild duration")

	m.journalErrors = m.counterVec("journal_errors_total", "Durable journal write failures", "operation")
	m.publishes = m.counterVec("notifications_total", "Attendance notifications by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = m.counterVec("http_rate_limited_total", "Requests refused by the rate limiter", "endpoint")

	m.queueSize = m.gauge("queue_size", "Current number of frames waiting")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of frames enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of frames dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of refused enqueues")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency", m.latencyBuckets)

	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average frames processed per second by workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency", m.latencyBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Recognition.

// RecordFrameProcessed increments the processed frames counter.
func RecordFrameProcessed() { globalManager.framesProcessed.Inc() }

// RecordFrameDropped increments the dropped frames counter.
func RecordFrameDropped() { globalManager.framesDropped.Inc() }

// RecordFacesDetected observes the number of faces in one frame.
func RecordFacesDetected(n int) { globalManager.facesDetected.Observe(float64(n)) }

// RecordMatchOutcome counts one face outcome.
func RecordMatchOutcome(outcome string) { globalManager.matchOutcomes.WithLabelValues(outcome).Inc() }

// RecordMatchDistance observes the nearest-neighbour distance of a probe.
func RecordMatchDistance(d float64) { globalManager.matchDistance.Observe(d) }

// RecordTickLatency records one recognition tick in milliseconds.
func RecordTickLatency(latencyMs float64) { globalManager.tickLatency.Observe(latencyMs) }

// RecordExtractionLatency records extractor latency in milliseconds.
func RecordExtractionLatency(latencyMs float64) { globalManager.extractionLatency.Observe(latencyMs) }

// Attendance.

// RecordAttendanceMarked increments the marked counter.
func RecordAttendanceMarked() { globalManager.attendanceMarked.Inc() }

// RecordAttendanceDeduplicated increments the deduplicated counter.
func RecordAttendanceDeduplicated() { globalManager.attendanceDeduplicated.Inc() }

// RecordAttendanceManual increments the manual marks counter.
func RecordAttendanceManual() { globalManager.attendanceManual.Inc() }

// UpdateLedgerRecords sets the number of records held in the ledger.
func UpdateLedgerRecords(n int64) { globalManager.ledgerRecords.Set(float64(n)) }

// Enrollment.

// RecordEnrollment counts a session ending with result (finalized, cancelled, expired, rejected).
func RecordEnrollment(result string) { globalManager.enrollments.WithLabelValues(result).Inc() }

// UpdateActiveSessions sets the number of open enrollment sessions.
func UpdateActiveSessions(n int) { globalManager.activeSessions.Set(float64(n)) }

// Gallery.

// UpdateGallerySize sets the number of identities in the gallery.
func UpdateGallerySize(n int) { globalManager.gallerySize.Set(float64(n)) }

// RecordGalleryUpdateLatency records gallery write latency in milliseconds.
func RecordGalleryUpdateLatency(latencyMs float64) { globalManager.galleryUpdateLatency.Observe(latencyMs) }

// RecordGallerySnapshotRebuild records one snapshot publish.
func RecordGallerySnapshotRebuild(durationMs float64) {
	globalManager.gallerySnapshotRebuild.Observe(durationMs)
	globalManager.gallerySnapshotCount.Inc()
	globalManager.gallerySnapshotLastDurationMs.Set(durationMs)
}

// Side effects.

// RecordJournalError counts a failed journal write for operation.
func RecordJournalError(operation string) { globalManager.journalErrors.WithLabelValues(operation).Inc() }

// RecordPublish counts a notification attempt with result (ok, error).
func RecordPublish(result string) { globalManager.publishes.WithLabelValues(result).Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request refused by the limiter.
func RecordRateLimited(endpoint string) { globalManager.httpRateLimited.WithLabelValues(endpoint).Inc() }

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerMessagesPerSecond sets the average frames processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) { globalManager.workerMessagesPerSecond.Set(rate) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrorRate.Inc() }

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
