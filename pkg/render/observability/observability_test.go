package observability

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewJobCompletedEvent(t *testing.T) {
	event := NewJobCompletedEvent("qm-1", JobTypeRender, "/data/transcripts/demo.jsonl", 45)

	if event.EventID == "" {
		t.Error("EventID should be generated")
	}
	if event.JobID != "qm-1" {
		t.Errorf("JobID = %s, want qm-1", event.JobID)
	}
	if event.JobType != JobTypeRender {
		t.Errorf("JobType = %s, want %s", event.JobType, JobTypeRender)
	}
	if event.TranscriptPath != "/data/transcripts/demo.jsonl" {
		t.Errorf("TranscriptPath = %s", event.TranscriptPath)
	}
	if event.DurationMs != 45 {
		t.Errorf("DurationMs = %d, want 45", event.DurationMs)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestNewJobFailedEvent(t *testing.T) {
	event := NewJobFailedEvent("qm-2", JobTypeVerify, "/data/bad.jsonl", "PARSE_ERROR", "not valid JSONL", false, 3)

	if event.ErrorCode != "PARSE_ERROR" {
		t.Errorf("ErrorCode = %s, want PARSE_ERROR", event.ErrorCode)
	}
	if event.ErrorMessage != "not valid JSONL" {
		t.Errorf("ErrorMessage = %s", event.ErrorMessage)
	}
	if event.Retryable {
		t.Error("Retryable should be false")
	}
	if event.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", event.RetryCount)
	}
}

func TestNewQueueStatsEvent(t *testing.T) {
	event := NewQueueStatsEvent("render:jobs", 10, 2, 1)

	if event.Queue != "render:jobs" {
		t.Errorf("Queue = %s, want render:jobs", event.Queue)
	}
	if event.Queued != 10 || event.Processing != 2 || event.DeadLetters != 1 {
		t.Errorf("counts = %d/%d/%d, want 10/2/1", event.Queued, event.Processing, event.DeadLetters)
	}
}

func TestEventMarshalling(t *testing.T) {
	event := NewJobCompletedEvent("qm-1", JobTypeRender, "/data/demo.jsonl", 45)
	event.BatchID = "bt-0001aaaa"
	event.TraceID = "trace-abc"
	event.Blocks = 12
	event.Citations = 3

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded JobCompletedEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.EventID != event.EventID {
		t.Errorf("Decoded EventID mismatch")
	}
	if decoded.BatchID != "bt-0001aaaa" {
		t.Errorf("Decoded BatchID = %s, want bt-0001aaaa", decoded.BatchID)
	}
	if decoded.Blocks != 12 {
		t.Errorf("Decoded Blocks = %d, want 12", decoded.Blocks)
	}
}

func TestNoOpEventPublisher(t *testing.T) {
	pub := &NoOpEventPublisher{}

	err := pub.Publish(context.Background(), ChannelJobCompleted, &JobCompletedEvent{})
	if err != nil {
		t.Errorf("NoOp Publish returned error: %v", err)
	}

	err = pub.Close()
	if err != nil {
		t.Errorf("NoOp Close returned error: %v", err)
	}
}

func TestEventEmitter(t *testing.T) {
	var published []struct {
		channel string
		event   interface{}
	}

	mockPublisher := NewRedisEventPublisher(func(ctx context.Context, channel string, message interface{}) error {
		published = append(published, struct {
			channel string
			event   interface{}
		}{channel, message})
		return nil
	})

	emitter := NewEventEmitter(mockPublisher)

	ctx := context.Background()

	completed := NewJobCompletedEvent("qm-1", JobTypeRender, "/data/demo.jsonl", 45)
	if err := emitter.EmitJobCompleted(ctx, completed); err != nil {
		t.Errorf("EmitJobCompleted error: %v", err)
	}

	failed := NewJobFailedEvent("qm-2", JobTypeRender, "/data/bad.jsonl", "TIMEOUT", "handler timed out", true, 1)
	if err := emitter.EmitJobFailed(ctx, failed); err != nil {
		t.Errorf("EmitJobFailed error: %v", err)
	}

	stats := NewQueueStatsEvent("render:jobs", 5, 1, 0)
	if err := emitter.EmitQueueStats(ctx, stats); err != nil {
		t.Errorf("EmitQueueStats error: %v", err)
	}

	if len(published) != 3 {
		t.Errorf("Expected 3 published events, got %d", len(published))
	}

	expectedChannels := []string{
		ChannelJobCompleted,
		ChannelJobFailed,
		ChannelQueueStats,
	}
	for i, expected := range expectedChannels {
		if published[i].channel != expected {
			t.Errorf("Event %d channel = %s, want %s", i, published[i].channel, expected)
		}
	}
}

func TestRenderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewRenderMetrics(reg)

	metrics.RecordQueueEnqueue("render:jobs", "normal")
	metrics.SetQueueDepth("render:jobs", QueueStateQueued, 10)
	metrics.RecordQueueWait("render:jobs", "normal", 0.5)
	metrics.RecordDLQItem("render:jobs", "PARSE_ERROR")

	metrics.RecordJob(JobTypeRender, JobStatusSuccess)
	metrics.RecordDuration(JobTypeRender, 0.045)

	metrics.AddMessages("assistant", 3)
	metrics.AddBlocks("paragraph", 12)
	metrics.AddBlocks("heading", 2)
	metrics.AddTokens("citation", 4)

	metrics.RecordCitation("title_contains")
	metrics.RecordCitation("fallback_first")
	metrics.RecordDocumentSize("text", 2048)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"sightline_queue_items_total":        false,
		"sightline_queue_depth":              false,
		"sightline_queue_wait_seconds":       false,
		"sightline_dlq_items_total":          false,
		"sightline_render_jobs_total":        false,
		"sightline_render_duration_seconds":  false,
		"sightline_render_messages_total":    false,
		"sightline_render_blocks_total":      false,
		"sightline_render_tokens_total":      false,
		"sightline_citations_resolved_total": false,
		"sightline_render_document_bytes":    false,
	}

	for _, fam := range families {
		if _, ok := expectedMetrics[fam.GetName()]; ok {
			expectedMetrics[fam.GetName()] = true
		}
	}

	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Metric %s not found in registry", name)
		}
	}
}

func TestJobRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewRenderMetrics(reg)
	recorder := NewJobRecorder(metrics, JobTypeRender)

	recorder.RecordCompletion(JobStatusSuccess, 0.05)
	recorder.RecordMessage("assistant")
	recorder.RecordBlocks("paragraph", 8)
	recorder.RecordTokens("emphasis", 3)
	recorder.RecordCitation("title_prefix")
	recorder.RecordDocument("json", 4096)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(families) == 0 {
		t.Error("No metrics were recorded")
	}
}

func TestTracer(t *testing.T) {
	tracer := NewTracer()

	ctx := context.Background()

	ctx, jobSpan := tracer.StartJobSpan(ctx, JobTypeRender, "qm-1", "bt-0001aaaa")
	if jobSpan == nil {
		t.Error("Job span should not be nil")
	}
	jobSpan.End()

	ctx, stageSpan := tracer.StartStageSpan(ctx, "annotate")
	if stageSpan == nil {
		t.Error("Stage span should not be nil")
	}
	stageSpan.End()

	ctx, msgSpan := tracer.StartMessageSpan(ctx, "m1", "assistant")
	if msgSpan == nil {
		t.Error("Message span should not be nil")
	}
	msgSpan.End()

	ctx, resSpan := tracer.StartResolveSpan(ctx, "My Video")
	if resSpan == nil {
		t.Error("Resolve span should not be nil")
	}
	resSpan.End()

	_, regSpan := tracer.StartRegistryLoadSpan(ctx, "database")
	if regSpan == nil {
		t.Error("Registry span should not be nil")
	}
	regSpan.End()
}

func TestSpanHelper(t *testing.T) {
	tracer := NewTracer()
	ctx, span := tracer.StartJobSpan(context.Background(), JobTypeRender, "qm-1", "")
	defer span.End()

	helper := NewSpanHelper(span)

	helper.SetJobInfo(JobTypeRender, "qm-1", "bt-0001aaaa")
	helper.SetTranscript("/data/demo.jsonl", 3)
	helper.SetAnnotationStats(12, 40, 4, 1)
	helper.SetDocument("text", 2048)
	helper.SetResolution("vd-0001aaaa", "title_contains")
	helper.SetDuration(1500)
	helper.SetSuccess()
	helper.SetError(errors.New("boom"), "PARSE_ERROR", false)

	traceID := GetTraceID(ctx)
	if traceID == "" {
		t.Log("TraceID is empty (expected with NoOp provider)")
	}

	headers := InjectTraceContext(ctx)
	if headers == nil {
		t.Error("InjectTraceContext returned nil")
	}
}
