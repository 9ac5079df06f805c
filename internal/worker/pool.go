// -----------------------------------------------------------------------
// Worker Pool - polls the queue and drives the analysis processor
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/queue"
)

// Pool runs a fixed number of workers over the job queue. Each worker
// polls, claims one message, runs it to a terminal state and only then
// acknowledges it, so a crash mid-job redelivers the message.
type Pool struct {
	queue        queue.Manager
	processor    *AnalysisProcessor
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex
}

// NewPool creates a stopped worker pool
func NewPool(queueMgr queue.Manager, processor *AnalysisProcessor, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		queue:        queueMgr,
		processor:    processor,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Warn().Msg("Worker pool already running")
		return
	}
	p.running = true

	p.logger.Info().
		Int("workers", p.concurrency).
		Str("poll_interval", p.pollInterval.String()).
		Msg("Starting worker pool")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels all workers and waits for in-flight jobs to resolve.
// Jobs caught mid-phase are marked failed with a shutdown error by the
// processor before their worker exits.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info().Msg("Stopping worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

// worker is one poll-process-acknowledge loop
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Msg("Worker stopping")
			return
		default:
		}

		msg, receipt, err := p.queue.Receive(p.ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrNoMessage) {
				p.logger.Error().Err(err).Int("worker_id", workerID).Msg("Queue receive failed")
			}
			select {
			case <-p.ctx.Done():
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.logger.Debug().
			Int("worker_id", workerID).
			Str("job_id", msg.JobID).
			Msg("Claimed job from queue")

		// Long jobs renew their visibility lease at phase boundaries so a
		// second worker never claims an in-flight message
		extend := func(ctx context.Context) error {
			return p.queue.Extend(ctx, receipt.MessageID, 0)
		}

		if err := p.processor.Process(p.ctx, msg.JobID, extend); err != nil {
			// The message stays in flight and redelivers after the
			// visibility timeout; poison messages are capped by the
			// queue's receive limit
			p.logger.Error().
				Err(err).
				Str("job_id", msg.JobID).
				Msg("Job processing could not resolve the job, leaving message for redelivery")
			continue
		}

		if err := receipt.Ack(); err != nil {
			p.logger.Error().
				Err(err).
				Str("job_id", msg.JobID).
				Msg("Failed to acknowledge queue message")
		}
	}
}
