package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue depth states
const (
	QueueStateQueued     = "queued"
	QueueStateProcessing = "processing"
	QueueStateDeadLetter = "dead_letter"
)

// RenderMetrics holds all Prometheus metrics for the render pipeline.
type RenderMetrics struct {
	// Queue metrics
	QueueItemsTotal  *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	QueueWaitSeconds *prometheus.HistogramVec
	DLQItemsTotal    *prometheus.CounterVec

	// Job metrics
	JobsTotal       *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec

	// Annotation metrics
	MessagesTotal *prometheus.CounterVec
	BlocksTotal   *prometheus.CounterVec
	TokensTotal   *prometheus.CounterVec

	// Output metrics
	CitationsResolvedTotal *prometheus.CounterVec
	DocumentBytes          *prometheus.HistogramVec
}

// DefaultRenderMetrics creates metrics with the default registerer.
func DefaultRenderMetrics() *RenderMetrics {
	return NewRenderMetrics(prometheus.DefaultRegisterer)
}

// NewRenderMetrics creates a new set of render pipeline metrics.
func NewRenderMetrics(reg prometheus.Registerer) *RenderMetrics {
	factory := promauto.With(reg)

	return &RenderMetrics{
		// Queue metrics
		QueueItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_queue_items_total",
				Help: "Total jobs entering the render queue",
			},
			[]string{"queue", "priority"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sightline_queue_depth",
				Help: "Current queue depth by state",
			},
			[]string{"queue", "state"},
		),
		QueueWaitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sightline_queue_wait_seconds",
				Help:    "Time a job spent queued before pickup",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
			},
			[]string{"queue", "priority"},
		),
		DLQItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_dlq_items_total",
				Help: "Total jobs moved to the dead letter queue",
			},
			[]string{"queue", "error_code"},
		),

		// Job metrics
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_render_jobs_total",
				Help: "Total render jobs by type and status",
			},
			[]string{"type", "status"},
		),
		DurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sightline_render_duration_seconds",
				Help:    "End to end job duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"type"},
		),

		// Annotation metrics
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_render_messages_total",
				Help: "Total transcript messages annotated",
			},
			[]string{"role"},
		),
		BlocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_render_blocks_total",
				Help: "Total block nodes produced by kind",
			},
			[]string{"kind"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_render_tokens_total",
				Help: "Total inline tokens produced by kind",
			},
			[]string{"kind"},
		),

		// Output metrics
		CitationsResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightline_citations_resolved_total",
				Help: "Total citation resolutions by match type",
			},
			[]string{"match"},
		),
		DocumentBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sightline_render_document_bytes",
				Help:    "Rendered document size in bytes",
				Buckets: []float64{1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
			},
			[]string{"format"},
		),
	}
}

// RecordQueueEnqueue records a job entering the queue.
func (m *RenderMetrics) RecordQueueEnqueue(queue, priority string) {
	m.QueueItemsTotal.WithLabelValues(queue, priority).Inc()
}

// SetQueueDepth sets the current depth of one queue state.
func (m *RenderMetrics) SetQueueDepth(queue, state string, depth float64) {
	m.QueueDepth.WithLabelValues(queue, state).Set(depth)
}

// RecordQueueWait records the time a job spent in the queue.
func (m *RenderMetrics) RecordQueueWait(queue, priority string, seconds float64) {
	m.QueueWaitSeconds.WithLabelValues(queue, priority).Observe(seconds)
}

// RecordDLQItem records a job moved to the dead letter queue.
func (m *RenderMetrics) RecordDLQItem(queue, errorCode string) {
	m.DLQItemsTotal.WithLabelValues(queue, errorCode).Inc()
}

// RecordJob records a completed job.
func (m *RenderMetrics) RecordJob(jobType, status string) {
	m.JobsTotal.WithLabelValues(jobType, status).Inc()
}

// RecordDuration records end to end job duration.
func (m *RenderMetrics) RecordDuration(jobType string, seconds float64) {
	m.DurationSeconds.WithLabelValues(jobType).Observe(seconds)
}

// AddMessages adds annotated message counts for a role.
func (m *RenderMetrics) AddMessages(role string, count float64) {
	m.MessagesTotal.WithLabelValues(role).Add(count)
}

// AddBlocks adds block node counts for a kind.
func (m *RenderMetrics) AddBlocks(kind string, count float64) {
	m.BlocksTotal.WithLabelValues(kind).Add(count)
}

// AddTokens adds inline token counts for a kind.
func (m *RenderMetrics) AddTokens(kind string, count float64) {
	m.TokensTotal.WithLabelValues(kind).Add(count)
}

// RecordCitation records one citation resolution.
func (m *RenderMetrics) RecordCitation(match string) {
	m.CitationsResolvedTotal.WithLabelValues(match).Inc()
}

// RecordDocumentSize records the size of a rendered document.
func (m *RenderMetrics) RecordDocumentSize(format string, sizeBytes float64) {
	m.DocumentBytes.WithLabelValues(format).Observe(sizeBytes)
}

// JobRecorder provides a convenient interface for recording metrics during one job.
type JobRecorder struct {
	metrics *RenderMetrics
	jobType string
}

// NewJobRecorder creates a new metrics recorder for a job type.
func NewJobRecorder(metrics *RenderMetrics, jobType string) *JobRecorder {
	return &JobRecorder{
		metrics: metrics,
		jobType: jobType,
	}
}

// RecordCompletion records job completion metrics.
func (r *JobRecorder) RecordCompletion(status string, durationSeconds float64) {
	r.metrics.RecordJob(r.jobType, status)
	r.metrics.RecordDuration(r.jobType, durationSeconds)
}

// RecordMessage records one annotated message.
func (r *JobRecorder) RecordMessage(role string) {
	r.metrics.AddMessages(role, 1)
}

// RecordBlocks records block counts for a kind.
func (r *JobRecorder) RecordBlocks(kind string, count int) {
	r.metrics.AddBlocks(kind, float64(count))
}

// RecordTokens records token counts for a kind.
func (r *JobRecorder) RecordTokens(kind string, count int) {
	r.metrics.AddTokens(kind, float64(count))
}

// RecordCitation records one citation resolution.
func (r *JobRecorder) RecordCitation(match string) {
	r.metrics.RecordCitation(match)
}

// RecordDocument records a finished document.
func (r *JobRecorder) RecordDocument(format string, sizeBytes int) {
	r.metrics.RecordDocumentSize(format, float64(sizeBytes))
}
