// Package worker provides the bounded background pool running memory
// persistence and summarization off the chat hot path.
//
// The pool decouples the turn pipeline from storage work so replies return
// without waiting on the writer. Jobs carry their own context: background
// persistence survives the foreground caller's cancellation.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

var (
	defaultNumWorkers   = 4
	defaultJobQueueSize = 256
)

// Job is a unit of background work.
type Job struct {
	// Name labels the job in logs.
	Name string

	// Run does the work. The context is the pool's base context, not the
	// submitting caller's.
	Run func(ctx context.Context)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers. Default 4.
	NumWorkers int

	// QueueSize is the capacity of the job queue. Default 256.
	QueueSize int

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool processes jobs asynchronously on a fixed set of workers. When the
// queue is full the oldest not-yet-started job is dropped with a warning so
// fresh work is never refused.
type Pool struct {
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool and starts its workers.
func NewPool(c Config) *Pool {
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultJobQueueSize
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(c.NumWorkers)
	for i := 0; i < c.NumWorkers; i++ {
		go p.worker(i)
	}
	return p
}

// Enqueue submits a job. On overflow the oldest queued job is dropped to
// make room; Enqueue itself never blocks. Returns false only after Close.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	for {
		select {
		case p.queue <- job:
			p.logger.Debug("job queued", zap.String("job", job.Name))
			return true
		default:
		}

		select {
		case dropped := <-p.queue:
			p.logger.Warn("job queue full, dropping oldest job",
				zap.String("dropped", dropped.Name),
				zap.String("queued", job.Name),
			)
		default:
		}
	}
}

// Close stops accepting jobs and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels the pool context, abandons queued work and waits for
// in-flight jobs to observe cancellation.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for job := range p.queue {
		job.Run(p.ctx)
	}

	p.logger.Debug("worker stopped", zap.Int("worker_id", id))
}
