package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for render operations.
	TracerName = "render"
)

// Span attribute keys
const (
	AttrJobID          = "job_id"
	AttrBatchID        = "batch_id"
	AttrJobType        = "job_type"
	AttrTranscript     = "transcript"
	AttrMessageID      = "message_id"
	AttrRole           = "role"
	AttrSourceID       = "source_id"
	AttrRawTitle       = "raw_title"
	AttrMatch          = "match"
	AttrFormat         = "format"
	AttrStage          = "stage"
	AttrRegistryOrigin = "registry_origin"
	AttrMessageCount   = "message_count"
	AttrBlockCount     = "block_count"
	AttrTokenCount     = "token_count"
	AttrCitationCount  = "citation_count"
	AttrFallbackCount  = "fallback_count"
	AttrDurationMs     = "duration_ms"
	AttrOutputBytes    = "output_bytes"
	AttrErrorType      = "error_type"
	AttrRetryable      = "retryable"
)

// Span names
const (
	SpanProcessJob      = "render.process_job"
	SpanStageLoad       = "render.stage.load"
	SpanStageAnnotate   = "render.stage.annotate"
	SpanStageWrite      = "render.stage.write"
	SpanAnnotateMessage = "render.annotate_message"
	SpanResolveCitation = "render.resolve_citation"
	SpanRegistryLoad    = "render.registry_load"
)

// Tracer provides distributed tracing for render operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new render tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartJobSpan starts a root span for one render or verify job.
func (t *Tracer) StartJobSpan(ctx context.Context, jobType, jobID, batchID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanProcessJob,
		trace.WithAttributes(
			attribute.String(AttrJobType, jobType),
			attribute.String(AttrJobID, jobID),
		),
	)
	if batchID != "" {
		span.SetAttributes(attribute.String(AttrBatchID, batchID))
	}
	return ctx, span
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("render.stage.%s", stage)
	return t.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
		),
	)
}

// StartMessageSpan starts a span for annotating one message.
func (t *Tracer) StartMessageSpan(ctx context.Context, messageID, role string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAnnotateMessage,
		trace.WithAttributes(
			attribute.String(AttrMessageID, messageID),
			attribute.String(AttrRole, role),
		),
	)
}

// StartResolveSpan starts a span for resolving one citation title.
func (t *Tracer) StartResolveSpan(ctx context.Context, rawTitle string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanResolveCitation,
		trace.WithAttributes(
			attribute.String(AttrRawTitle, rawTitle),
		),
	)
}

// StartRegistryLoadSpan starts a span for loading the source registry.
func (t *Tracer) StartRegistryLoadSpan(ctx context.Context, origin string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRegistryLoad,
		trace.WithAttributes(
			attribute.String(AttrRegistryOrigin, origin),
		),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetJobInfo sets job-related attributes on the span.
func (h *SpanHelper) SetJobInfo(jobType, jobID, batchID string) {
	h.span.SetAttributes(
		attribute.String(AttrJobType, jobType),
		attribute.String(AttrJobID, jobID),
	)
	if batchID != "" {
		h.span.SetAttributes(attribute.String(AttrBatchID, batchID))
	}
}

// SetTranscript sets transcript attributes on the span.
func (h *SpanHelper) SetTranscript(path string, messageCount int) {
	h.span.SetAttributes(
		attribute.String(AttrTranscript, path),
		attribute.Int(AttrMessageCount, messageCount),
	)
}

// SetAnnotationStats sets annotation result attributes.
func (h *SpanHelper) SetAnnotationStats(blocks, tokens, citations, fallbacks int) {
	h.span.SetAttributes(
		attribute.Int(AttrBlockCount, blocks),
		attribute.Int(AttrTokenCount, tokens),
		attribute.Int(AttrCitationCount, citations),
		attribute.Int(AttrFallbackCount, fallbacks),
	)
}

// SetDocument sets output document attributes.
func (h *SpanHelper) SetDocument(format string, sizeBytes int) {
	h.span.SetAttributes(
		attribute.String(AttrFormat, format),
		attribute.Int(AttrOutputBytes, sizeBytes),
	)
}

// SetResolution sets citation resolution attributes.
func (h *SpanHelper) SetResolution(sourceID, match string) {
	h.span.SetAttributes(
		attribute.String(AttrSourceID, sourceID),
		attribute.String(AttrMatch, match),
	)
}

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorType string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the context.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasSpanID() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}

// InjectTraceContext extracts trace context for propagation (e.g., to queue messages).
func InjectTraceContext(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	traceID := GetTraceID(ctx)
	spanID := GetSpanID(ctx)
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	if spanID != "" {
		headers["span_id"] = spanID
	}
	return headers
}
