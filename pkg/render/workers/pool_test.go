package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
)

// fakeQueue is an in-memory queue.Queue for driving workers in tests.
type fakeQueue struct {
	mu      sync.Mutex
	nextID  int
	pending []*queue.QueuedMessage
	acked   []string
	nacked  []string
	dead    map[string]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{dead: make(map[string]string)}
}

func (f *fakeQueue) push(t *testing.T, msg queue.Message) string {
	t.Helper()

	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	qm := &queue.QueuedMessage{
		ID:          fmt.Sprintf("qm-%d", f.nextID),
		Message:     payload,
		MessageType: msg.GetMessageType(),
		Priority:    msg.GetPriority(),
		EnqueuedAt:  time.Now(),
	}
	f.pending = append(f.pending, qm)
	return qm.ID
}

func (f *fakeQueue) pushRaw(qm *queue.QueuedMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, qm)
}

func (f *fakeQueue) Name() string { return "fake" }

func (f *fakeQueue) Enqueue(msg queue.Message) error { return nil }

func (f *fakeQueue) EnqueueBatch(msgs []queue.Message) error { return nil }

func (f *fakeQueue) Dequeue(maxMessages int, timeout time.Duration) ([]*queue.QueuedMessage, error) {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}

	if maxMessages > len(f.pending) {
		maxMessages = len(f.pending)
	}
	batch := f.pending[:maxMessages]
	f.pending = f.pending[maxMessages:]
	f.mu.Unlock()

	return batch, nil
}

func (f *fakeQueue) Ack(messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageID)
	return nil
}

func (f *fakeQueue) Nack(messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, messageID)
	return nil
}

func (f *fakeQueue) MoveToDeadLetter(messageID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[messageID] = reason
	return nil
}

func (f *fakeQueue) Depth() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.pending)), nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

func (f *fakeQueue) nackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nacked)
}

func (f *fakeQueue) deadReason(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.dead[id]
	return reason, ok
}

var _ queue.Queue = (*fakeQueue)(nil)

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Count:             1,
		BatchSize:         1,
		VisibilityTimeout: 30 * time.Second,
		PollInterval:      10 * time.Millisecond,
		ShutdownTimeout:   2 * time.Second,
	}
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWorker_ProcessesRenderJob(t *testing.T) {
	fq := newFakeQueue()
	id := fq.push(t, &queue.RenderMessage{
		TranscriptPath: "/data/transcripts/demo.jsonl",
		OutputPath:     "/data/out/demo.txt",
		Format:         "text",
	})

	var mu sync.Mutex
	var seen []string
	handler := func(ctx context.Context, msg queue.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.GetTranscriptPath())
		return nil
	}

	w := NewWorker(testWorkerConfig(), fq, handler, logging.NewNopLogger())
	w.Start()
	defer w.Stop()

	waitUntil(t, func() bool { return fq.ackedCount() == 1 }, "message was not acked")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "/data/transcripts/demo.jsonl", seen[0])
	assert.Equal(t, int64(1), w.ProcessedCount.Load())

	_, isDead := fq.deadReason(id)
	assert.False(t, isDead)
}

func TestWorker_PermanentErrorGoesToDLQ(t *testing.T) {
	fq := newFakeQueue()
	id := fq.push(t, &queue.RenderMessage{TranscriptPath: "/data/bad.jsonl"})

	handler := func(ctx context.Context, msg queue.Message) error {
		return queue.NewPermanentError(queue.ErrorCodeParse, "transcript is not valid JSONL", nil)
	}

	w := NewWorker(testWorkerConfig(), fq, handler, logging.NewNopLogger())
	w.Start()
	defer w.Stop()

	waitUntil(t, func() bool {
		_, ok := fq.deadReason(id)
		return ok
	}, "message was not dead-lettered")

	reason, _ := fq.deadReason(id)
	assert.Contains(t, reason, "not valid JSONL")
	assert.Equal(t, int64(1), w.FailedCount.Load())
	assert.Equal(t, 0, fq.nackedCount())
}

func TestWorker_TransientErrorNacks(t *testing.T) {
	fq := newFakeQueue()
	fq.push(t, &queue.VerifyMessage{TranscriptPath: "/data/flaky.jsonl"})

	handler := func(ctx context.Context, msg queue.Message) error {
		return queue.NewTransientError(queue.ErrorCodeDatabase, "registry load failed", nil)
	}

	w := NewWorker(testWorkerConfig(), fq, handler, logging.NewNopLogger())
	w.Start()
	defer w.Stop()

	waitUntil(t, func() bool { return fq.nackedCount() == 1 }, "message was not nacked")
	assert.Equal(t, int64(1), w.FailedCount.Load())
}

func TestWorker_PlainErrorNacks(t *testing.T) {
	fq := newFakeQueue()
	fq.push(t, &queue.RenderMessage{TranscriptPath: "/data/odd.jsonl"})

	handler := func(ctx context.Context, msg queue.Message) error {
		return errors.New("something unclassified")
	}

	w := NewWorker(testWorkerConfig(), fq, handler, logging.NewNopLogger())
	w.Start()
	defer w.Stop()

	waitUntil(t, func() bool { return fq.nackedCount() == 1 }, "message was not nacked")
}

func TestWorker_UnparseableMessageGoesToDLQ(t *testing.T) {
	fq := newFakeQueue()
	fq.pushRaw(&queue.QueuedMessage{
		ID:          "qm-bogus",
		Message:     []byte(`{}`),
		MessageType: queue.MessageType("bogus"),
	})

	handler := func(ctx context.Context, msg queue.Message) error {
		t.Error("handler should not run for unparseable messages")
		return nil
	}

	w := NewWorker(testWorkerConfig(), fq, handler, logging.NewNopLogger())
	w.Start()
	defer w.Stop()

	waitUntil(t, func() bool {
		_, ok := fq.deadReason("qm-bogus")
		return ok
	}, "message was not dead-lettered")

	reason, _ := fq.deadReason("qm-bogus")
	assert.Contains(t, reason, "parse error")
}

func TestPool_ProcessesAllMessages(t *testing.T) {
	fq := newFakeQueue()
	const jobs = 12
	for i := 0; i < jobs; i++ {
		fq.push(t, &queue.RenderMessage{
			TranscriptPath: fmt.Sprintf("/data/t%d.jsonl", i),
		})
	}

	handler := func(ctx context.Context, msg queue.Message) error { return nil }

	cfg := testWorkerConfig()
	cfg.Count = 3

	pool := NewPool(cfg, fq, handler, logging.NewNopLogger())
	pool.Start()

	waitUntil(t, func() bool { return fq.ackedCount() == jobs }, "not all messages were acked")

	stats := pool.Stats()
	assert.Equal(t, 3, stats.WorkerCount)
	assert.Equal(t, int64(jobs), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)

	pool.Stop()

	for _, w := range pool.Workers {
		assert.Equal(t, WorkerStatusStopped, w.Status)
	}
}

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig()

	assert.Equal(t, 4, cfg.Count)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Greater(t, cfg.VisibilityTimeout, 10*time.Second)
	assert.Greater(t, cfg.ShutdownTimeout, time.Duration(0))
}
