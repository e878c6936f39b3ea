// Package tasks is a bounded pool of worker loops executing retryable
// background work: at-least-once, linear backoff, never blocking the
// submitter. Callbacks must be idempotent; the queue retries, it does not
// deduplicate.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	// Name labels the kind of work ("fiat-redemption", "collateral-release").
	Name string
	// ID correlates retries of the same submission in logs.
	ID       string
	Run      func(ctx context.Context) error
	attempts int
}

type Queue struct {
	workers    int
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	pending []*Task

	signal chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewQueue(workers, maxRetries int, backoff time.Duration, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		workers:    workers,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		signal:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Submit enqueues work without blocking. The callback owns its own timeouts;
// the queue never cancels an in-flight run.
func (q *Queue) Submit(name string, run func(ctx context.Context) error) {
	q.enqueue(&Task{Name: name, ID: uuid.NewString(), Run: run})
}

func (q *Queue) enqueue(t *Task) {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

// Stop signals workers to exit after their current item.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stop) })
}

// Wait blocks until all workers exit or the timeout elapses, reporting
// whether the drain completed.
func (q *Queue) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		default:
		}

		t := q.pop()
		if t == nil {
			select {
			case <-q.signal:
				continue
			case <-q.stop:
				return
			}
		}

		q.run(t)
	}
}

func (q *Queue) run(t *Task) {
	err := t.Run(context.Background())
	if err == nil {
		q.logger.Info("task completed", "task", t.Name, "id", t.ID, "attempts", t.attempts+1)
		return
	}

	t.attempts++
	if t.attempts > q.maxRetries {
		q.logger.Error("task permanently failed, dropping",
			"task", t.Name, "id", t.ID, "attempts", t.attempts, "error", err)
		return
	}

	delay := q.backoff * time.Duration(t.attempts)
	q.logger.Warn("task failed, will retry",
		"task", t.Name, "id", t.ID, "attempt", t.attempts, "retry_in", delay, "error", err)
	select {
	case <-time.After(delay):
		q.enqueue(t)
	case <-q.stop:
		// Dropped on shutdown; the work is idempotent and re-derivable
		// from the audit trail.
	}
}
