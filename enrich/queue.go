package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job identifies one link to enrich.
type Job struct {
	LinkID string
	UserID string
}

// Queue fans enrichment jobs out to a fixed pool of workers. Save
// requests submit and return immediately; workers do the slow part.
type Queue struct {
	enricher *Enricher
	logger   *slog.Logger

	jobs    chan Job
	workers int
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a Queue with the given worker count and buffer.
func NewQueue(enricher *Enricher, workers, buffer int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		enricher: enricher,
		logger:   logger,
		jobs:     make(chan Job, buffer),
		workers:  workers,
		timeout:  2 * time.Minute,
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("enrichment queue started", "workers", q.workers)
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		q.enricher.ProcessLink(ctx, job.LinkID, job.UserID)
		cancel()
	}
	q.logger.Debug("enrichment worker stopped", "worker", id)
}

// Submit enqueues a job without blocking. Returns false when the
// buffer is full or the queue has been stopped; the link stays
// pending and can be retried.
func (q *Queue) Submit(job Job) bool {
	// The send must happen under the lock so Stop cannot close the
	// channel between the closed check and the send.
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("enrichment queue stopped, dropping job", "link_id", job.LinkID)
		return false
	}

	select {
	case q.jobs <- job:
		return true
	default:
		q.logger.Warn("enrichment queue full, dropping job", "link_id", job.LinkID)
		return false
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
// Safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("enrichment queue stopped")
}
