// Package observability provides event schemas, metrics, and tracing for the batch render pipeline.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event channels for Redis pub/sub
const (
	ChannelJobCompleted = "events.render.job_completed"
	ChannelJobFailed    = "events.render.job_failed"
	ChannelQueueStats   = "events.render.queue_stats"
)

// Job types
const (
	JobTypeRender = "render"
	JobTypeVerify = "verify"
)

// Job statuses
const (
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// JobCompletedEvent is emitted after a render or verify job finishes.
type JobCompletedEvent struct {
	EventID        string    `json:"event_id"`
	JobID          string    `json:"job_id"`
	BatchID        string    `json:"batch_id,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
	JobType        string    `json:"job_type"`
	TranscriptPath string    `json:"transcript_path"`
	OutputPath     string    `json:"output_path,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Messages       int       `json:"messages"`
	Blocks         int       `json:"blocks"`
	Citations      int       `json:"citations"`
	Fallbacks      int       `json:"fallbacks"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewJobCompletedEvent creates a new completion event with a generated ID.
func NewJobCompletedEvent(jobID, jobType, transcriptPath string, durationMs int64) *JobCompletedEvent {
	return &JobCompletedEvent{
		EventID:        uuid.New().String(),
		JobID:          jobID,
		JobType:        jobType,
		TranscriptPath: transcriptPath,
		DurationMs:     durationMs,
		Timestamp:      time.Now(),
	}
}

// JobFailedEvent is emitted when a job fails or is dead-lettered.
type JobFailedEvent struct {
	EventID        string    `json:"event_id"`
	JobID          string    `json:"job_id"`
	BatchID        string    `json:"batch_id,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
	JobType        string    `json:"job_type"`
	TranscriptPath string    `json:"transcript_path"`
	ErrorCode      string    `json:"error_code"`
	ErrorMessage   string    `json:"error_message"`
	Retryable      bool      `json:"retryable"`
	RetryCount     int       `json:"retry_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewJobFailedEvent creates a new failure event with a generated ID.
func NewJobFailedEvent(jobID, jobType, transcriptPath, errorCode, errorMsg string, retryable bool, retryCount int) *JobFailedEvent {
	return &JobFailedEvent{
		EventID:        uuid.New().String(),
		JobID:          jobID,
		JobType:        jobType,
		TranscriptPath: transcriptPath,
		ErrorCode:      errorCode,
		ErrorMessage:   errorMsg,
		Retryable:      retryable,
		RetryCount:     retryCount,
		Timestamp:      time.Now(),
	}
}

// QueueStatsEvent provides periodic queue status updates.
type QueueStatsEvent struct {
	EventID     string    `json:"event_id"`
	Queue       string    `json:"queue"`
	Queued      int64     `json:"queued"`
	Processing  int64     `json:"processing"`
	DeadLetters int64     `json:"dead_letters"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewQueueStatsEvent creates a new queue stats event with a generated ID.
func NewQueueStatsEvent(queue string, queued, processing, deadLetters int64) *QueueStatsEvent {
	return &QueueStatsEvent{
		EventID:     uuid.New().String(),
		Queue:       queue,
		Queued:      queued,
		Processing:  processing,
		DeadLetters: deadLetters,
		Timestamp:   time.Now(),
	}
}

// EventPublisher publishes events to Redis channels.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event interface{}) error
	Close() error
}

// RedisEventPublisher publishes events to Redis.
type RedisEventPublisher struct {
	publish func(ctx context.Context, channel string, message interface{}) error
}

// NewRedisEventPublisher creates a publisher using a Redis publish function.
func NewRedisEventPublisher(publishFn func(ctx context.Context, channel string, message interface{}) error) *RedisEventPublisher {
	return &RedisEventPublisher{publish: publishFn}
}

// Publish publishes an event to a Redis channel.
func (p *RedisEventPublisher) Publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.publish(ctx, channel, data)
}

// Close is a no-op for Redis publisher.
func (p *RedisEventPublisher) Close() error {
	return nil
}

// NoOpEventPublisher discards all events (for testing or disabled observability).
type NoOpEventPublisher struct{}

// Publish does nothing.
func (p *NoOpEventPublisher) Publish(ctx context.Context, channel string, event interface{}) error {
	return nil
}

// Close does nothing.
func (p *NoOpEventPublisher) Close() error {
	return nil
}

// EventEmitter provides a convenient interface for emitting render events.
type EventEmitter struct {
	publisher EventPublisher
}

// NewEventEmitter creates a new event emitter.
func NewEventEmitter(publisher EventPublisher) *EventEmitter {
	return &EventEmitter{publisher: publisher}
}

// EmitJobCompleted emits a job completion event.
func (e *EventEmitter) EmitJobCompleted(ctx context.Context, event *JobCompletedEvent) error {
	return e.publisher.Publish(ctx, ChannelJobCompleted, event)
}

// EmitJobFailed emits a job failure event.
func (e *EventEmitter) EmitJobFailed(ctx context.Context, event *JobFailedEvent) error {
	return e.publisher.Publish(ctx, ChannelJobFailed, event)
}

// EmitQueueStats emits a queue stats event.
func (e *EventEmitter) EmitQueueStats(ctx context.Context, event *QueueStatsEvent) error {
	return e.publisher.Publish(ctx, ChannelQueueStats, event)
}

// Close closes the underlying publisher.
func (e *EventEmitter) Close() error {
	return e.publisher.Close()
}
