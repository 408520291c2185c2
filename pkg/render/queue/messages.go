// Package queue provides the Redis-backed job queue for batch rendering.
package queue

import (
	"encoding/json"
	"time"
)

// Priority levels for queue messages.
type Priority int

const (
	PriorityLow    Priority = 0 // Backfill re-renders
	PriorityNormal Priority = 1 // Batch submits
	PriorityHigh   Priority = 2 // Operator-initiated single jobs
)

// MessageType identifies the type of queue message.
type MessageType string

const (
	MessageTypeRender MessageType = "render"
	MessageTypeVerify MessageType = "verify"
)

// Message is the base interface for all queue messages.
type Message interface {
	// GetTranscriptPath returns the transcript being processed.
	GetTranscriptPath() string
	// GetPriority returns the message priority.
	GetPriority() Priority
	// GetMessageType returns the message type.
	GetMessageType() MessageType
	// GetBatchID returns the batch ID if part of a batch.
	GetBatchID() string
}

// RenderMessage asks the worker to render one transcript to a document.
type RenderMessage struct {
	TranscriptPath string    `json:"transcript_path"`
	SourcesPath    string    `json:"sources_path,omitempty"` // empty means registry from database
	OutputPath     string    `json:"output_path"`
	Format         string    `json:"format"` // text or json
	Filter         string    `json:"filter,omitempty"`
	Charset        string    `json:"charset,omitempty"`
	Priority       Priority  `json:"priority"`
	BatchID        string    `json:"batch_id,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

func (m *RenderMessage) GetTranscriptPath() string   { return m.TranscriptPath }
func (m *RenderMessage) GetPriority() Priority       { return m.Priority }
func (m *RenderMessage) GetMessageType() MessageType { return MessageTypeRender }
func (m *RenderMessage) GetBatchID() string          { return m.BatchID }

// VerifyMessage asks the worker to annotate a transcript and record citation
// resolution stats without producing a document. Used for lint runs over
// transcript archives.
type VerifyMessage struct {
	TranscriptPath string    `json:"transcript_path"`
	SourcesPath    string    `json:"sources_path,omitempty"`
	Charset        string    `json:"charset,omitempty"`
	Priority       Priority  `json:"priority"`
	BatchID        string    `json:"batch_id,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

func (m *VerifyMessage) GetTranscriptPath() string   { return m.TranscriptPath }
func (m *VerifyMessage) GetPriority() Priority       { return m.Priority }
func (m *VerifyMessage) GetMessageType() MessageType { return MessageTypeVerify }
func (m *VerifyMessage) GetBatchID() string          { return m.BatchID }

// QueuedMessage wraps a message with queue metadata.
type QueuedMessage struct {
	ID           string          `json:"id"`
	Message      json.RawMessage `json:"message"`
	MessageType  MessageType     `json:"message_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"` // For delayed visibility
}

// ParseMessage parses the raw message based on message type.
func (qm *QueuedMessage) ParseMessage() (Message, error) {
	switch qm.MessageType {
	case MessageTypeRender:
		var msg RenderMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case MessageTypeVerify:
		var msg VerifyMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// Queue defines the interface for a message queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a message to the queue.
	Enqueue(msg Message) error

	// EnqueueBatch adds multiple messages to the queue.
	EnqueueBatch(msgs []Message) error

	// Dequeue retrieves messages from the queue.
	// Returns up to maxMessages, blocks for timeout.
	Dequeue(maxMessages int, timeout time.Duration) ([]*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(messageID string) error

	// Nack indicates processing failure, message will be retried.
	Nack(messageID string) error

	// MoveToDeadLetter moves a message to the dead letter queue.
	MoveToDeadLetter(messageID string, reason string) error

	// Depth returns the current queue depth.
	Depth() (int64, error)

	// Close closes the queue connection.
	Close() error
}

// QueueConfig configures queue behavior.
type QueueConfig struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// DefaultQueueConfig returns the default configuration for the render queue.
// The visibility timeout covers rendering large transcript archives.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:              "render:jobs",
		VisibilityTimeout: 120 * time.Second,
		MaxRetries:        3,
		RetentionPeriod:   24 * time.Hour,
	}
}

// Verify interface compliance
var _ Message = (*RenderMessage)(nil)
var _ Message = (*VerifyMessage)(nil)
