// Package workers provides the worker pool that drains the render queue.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
)

// WorkerStatus represents the worker's current status.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusHealthy  WorkerStatus = "healthy"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// MessageHandler processes a queue message.
type MessageHandler func(ctx context.Context, msg queue.Message) error

// WorkerConfig configures a worker.
type WorkerConfig struct {
	Count             int           `yaml:"count"`
	BatchSize         int           `yaml:"batch_size"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DefaultWorkerConfig returns the default render worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Count:             4,
		BatchSize:         1,
		VisibilityTimeout: 120 * time.Second,
		PollInterval:      1 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Worker represents a single worker processing render jobs.
type Worker struct {
	ID           string
	Config       WorkerConfig
	Status       WorkerStatus
	Queue        queue.Queue
	Handler      MessageHandler
	StartedAt    time.Time
	LastActivity time.Time

	// Metrics
	ProcessedCount atomic.Int64
	FailedCount    atomic.Int64

	// Control
	logger     logging.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
}

// NewWorker creates a new worker.
func NewWorker(config WorkerConfig, q queue.Queue, handler MessageHandler, logger logging.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Worker{
		ID:         id,
		Config:     config,
		Status:     WorkerStatusStarting,
		Queue:      q,
		Handler:    handler,
		logger:     logger.With(logging.F("worker_id", id)),
		ctx:        ctx,
		cancelFunc: cancel,
		wg:         &sync.WaitGroup{},
	}
}

// Start begins processing messages.
func (w *Worker) Start() {
	w.StartedAt = time.Now()
	w.Status = WorkerStatusHealthy
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.processLoop()
	}()
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.Status = WorkerStatusDraining
	w.cancelFunc()

	// Wait for shutdown with timeout
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.Status = WorkerStatusStopped
	case <-time.After(w.Config.ShutdownTimeout):
		w.Status = WorkerStatusStopped
	}
}

func (w *Worker) processLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			messages, err := w.Queue.Dequeue(w.Config.BatchSize, w.Config.PollInterval)
			if err != nil {
				if w.ctx.Err() != nil {
					return
				}
				w.logger.Warn("Dequeue failed", logging.Err(err))
				time.Sleep(w.Config.PollInterval)
				continue
			}

			for _, qm := range messages {
				if w.ctx.Err() != nil {
					return
				}

				w.processMessage(qm)
			}
		}
	}
}

func (w *Worker) processMessage(qm *queue.QueuedMessage) {
	w.LastActivity = time.Now()

	msg, err := qm.ParseMessage()
	if err != nil {
		// Invalid message, move to DLQ
		w.Queue.MoveToDeadLetter(qm.ID, fmt.Sprintf("parse error: %v", err))
		w.FailedCount.Add(1)
		w.logger.Warn("Unparseable message moved to DLQ",
			logging.F("message_id", qm.ID),
			logging.Err(err))
		return
	}

	// Process with timeout inside the visibility window
	ctx, cancel := context.WithTimeout(w.ctx, w.Config.VisibilityTimeout-10*time.Second)
	defer cancel()

	err = w.Handler(ctx, msg)
	if err != nil {
		// Check error type for retry decision
		if procErr, ok := err.(*queue.ProcessingError); ok {
			if procErr.IsRetryable() {
				w.Queue.Nack(qm.ID)
			} else {
				w.Queue.MoveToDeadLetter(qm.ID, procErr.Error())
			}
		} else {
			// Unknown error, retry
			w.Queue.Nack(qm.ID)
		}
		w.FailedCount.Add(1)
		w.logger.Warn("Job failed",
			logging.F("message_id", qm.ID),
			logging.F("message_type", string(qm.MessageType)),
			logging.Err(err))
		return
	}

	// Success
	w.Queue.Ack(qm.ID)
	w.ProcessedCount.Add(1)
}

// Pool manages a pool of render workers.
type Pool struct {
	Config  WorkerConfig
	Workers []*Worker
	Queue   queue.Queue
	Handler MessageHandler

	logger logging.Logger
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool.
func NewPool(config WorkerConfig, q queue.Queue, handler MessageHandler, logger logging.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		Config:  config,
		Queue:   q,
		Handler: handler,
		Workers: make([]*Worker, 0, config.Count),
		logger:  logger.With(logging.F("component", "worker_pool")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts all workers in the pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.Config.Count; i++ {
		worker := NewWorker(p.Config, p.Queue, p.Handler, p.logger)
		worker.Start()
		p.Workers = append(p.Workers, worker)
	}

	p.logger.Info("Worker pool started", logging.F("count", p.Config.Count))
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var wg sync.WaitGroup
	for _, worker := range p.Workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()

	p.logger.Info("Worker pool stopped")
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		WorkerCount: len(p.Workers),
	}

	for _, w := range p.Workers {
		if w.Status == WorkerStatusHealthy {
			stats.ActiveCount++
		}
		stats.Processed += w.ProcessedCount.Load()
		stats.Failed += w.FailedCount.Load()
	}

	return stats
}

// PoolStats contains pool statistics.
type PoolStats struct {
	WorkerCount int   `json:"worker_count"`
	ActiveCount int   `json:"active_count"`
	Processed   int64 `json:"processed"`
	Failed      int64 `json:"failed"`
}
