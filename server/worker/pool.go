// Package worker provides an asynchronous worker pool that persists relayed
// chat turns using the provided storage.Driver and announces them through an
// eventstream.Publisher.
//
// The pool decouples storage from the server's streaming hot path: a stream
// is never held back by a slow database or broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/metrics"
	"github.com/papercomputeco/chatstream/pkg/relay"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Job is one finished stream to persist.
type Job struct {
	Provider       string
	ConversationID string

	// MessageID is the ID the assistant message is saved under. A nil ID is
	// generated.
	MessageID uuid.UUID

	Req       *llm.ChatRequest
	Result    relay.Result
	StartedAt time.Time
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting messages.
	Driver storage.Driver

	// Publisher is the optional event publisher. Nil disables events.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("provider", job.Provider),
			zap.String("conversation_id", job.ConversationID),
		)
		return true
	default:
		metrics.ObserveJob("dropped")
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("provider", job.Provider),
			zap.String("conversation_id", job.ConversationID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", zap.Uint("worker_id", id))
}

// processJob stores the turn and, if a publisher is configured, emits the
// message completed event. Publication failures are logged only: the message
// is already durable.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
	defer cancel()

	msg, err := p.storeTurn(ctx, job)
	if err != nil {
		metrics.ObserveJob("failed")
		p.logger.Error("async message storage failed",
			zap.String("provider", job.Provider),
			zap.String("conversation_id", job.ConversationID),
			zap.Error(err),
		)
		return
	}

	metrics.ObserveJob("stored")
	p.logger.Info("message stored",
		zap.String("id", msg.ID.String()),
		zap.String("conversation_id", msg.ConversationID),
		zap.String("status", string(msg.Status)),
		zap.String("provider", job.Provider),
	)

	if p.config.Publisher == nil {
		return
	}

	completedAt := job.StartedAt.Add(job.Result.Duration)
	event := eventstream.NewMessageCompletedEvent(msg, eventstream.StreamMeta{
		StartedAt:   job.StartedAt,
		CompletedAt: completedAt,
		DurationMs:  job.Result.Duration.Milliseconds(),
		Deltas:      job.Result.Deltas,
		Malformed:   job.Result.Malformed,
		Outcome:     job.Result.Outcome(),
	})
	if err := p.config.Publisher.PublishMessage(ctx, event); err != nil {
		p.logger.Warn("failed to publish message event",
			zap.String("id", msg.ID.String()),
			zap.Error(err),
		)
	}
}

// storeTurn saves the user's prompt and the assistant reply. A reply cut off
// by an error is saved as failed with the partial text that reached the
// client.
func (p *Pool) storeTurn(ctx context.Context, job Job) (*storage.Message, error) {
	model := job.Result.Model
	if job.Req != nil {
		if model == "" {
			model = job.Req.Model
		}

		if prompt := job.Req.LastUserText(); prompt != "" {
			userMsg := &storage.Message{
				ConversationID: job.ConversationID,
				Role:           "user",
				Model:          model,
				Provider:       job.Provider,
				Content:        prompt,
				Status:         storage.StatusComplete,
				CreatedAt:      job.StartedAt,
			}
			if err := p.config.Driver.SaveMessage(ctx, userMsg); err != nil {
				return nil, fmt.Errorf("storing user message: %w", err)
			}
		}
	}

	reply := &storage.Message{
		ID:             job.MessageID,
		ConversationID: job.ConversationID,
		Role:           "assistant",
		Model:          model,
		Provider:       job.Provider,
		Content:        job.Result.Text,
		Status:         storage.StatusComplete,
	}
	if job.Result.Err != nil {
		reply.Status = storage.StatusFailed
		reply.Error = job.Result.Err.Error()
	}

	if err := p.config.Driver.SaveMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("storing assistant message: %w", err)
	}

	p.logger.Debug("stored assistant message",
		zap.String("id", reply.ID.String()),
		zap.Int("content_len", len(reply.Content)),
		zap.String("outcome", job.Result.Outcome()),
	)

	return reply, nil
}
