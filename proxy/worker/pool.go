// Package worker provides an asynchronous worker pool that reports finished
// generations to the configured eventstream.Publisher.
//
// The pool decouples telemetry from the HTTP hot path so that a slow or
// unavailable event stream never delays a client's stream.
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

	"github.com/papercomputeco/streampump/pkg/eventstream"
	"github.com/papercomputeco/streampump/pkg/pump"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Result *pump.Result
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives one event per finished generation.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool publishes generation events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
	now    func() time.Time
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("worker pool requires a publisher")
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
		now:    time.Now,
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
	if job.Result == nil {
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("generation_id", job.Result.ID),
			zap.String("dialect", job.Result.Dialect),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("generation_id", job.Result.ID),
			zap.String("dialect", job.Result.Dialect),
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

	p.logger.Debug("telemetry worker stopped", zap.Uint("worker_id", id))
}

// processJob publishes the generation event for a job. Publish failures are
// logged and never retried.
func (p *Pool) processJob(job Job) {
	event := p.buildEvent(job.Result)

	if err := p.config.Publisher.PublishGeneration(context.Background(), event); err != nil {
		p.logger.Warn("failed to publish generation event",
			zap.String("generation_id", job.Result.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("generation event published",
		zap.String("event_id", event.EventID),
		zap.String("generation_id", job.Result.ID),
	)
}

func (p *Pool) buildEvent(r *pump.Result) *eventstream.GenerationCompletedEvent {
	return &eventstream.GenerationCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeGenerationCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     p.now().UTC(),
		Source: eventstream.EventSource{
			Dialect: r.Dialect,
			Vendor:  r.Vendor,
			Model:   r.Model,
		},
		Generation: eventstream.GenerationMeta{
			GenerationID: r.ID,
			StartedAt:    r.StartedAt.UTC(),
			CompletedAt:  r.StartedAt.Add(r.Duration).UTC(),
			DurationMs:   r.Duration.Milliseconds(),
			Retries:      r.Retries,
		},
		Outcome: eventstream.GenerationOutcome{
			Cause:          r.Cause,
			ErrorStage:     string(r.ErrorStage),
			Aborted:        r.Aborted(),
			UpstreamEvents: r.Stats.UpstreamEvents,
			EmittedEvents:  r.Stats.Emitted,
			TextBytes:      r.Stats.TextBytes,
		},
	}
}
