// Package tasks runs long generation jobs in the background behind a
// process-wide admission gate and keeps a pollable status per task.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"learnhub/internal/logger"
	"learnhub/internal/metrics"
)

// Task statuses reported to clients.
const (
	StatusInQueue    = "in_queue"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusNotFound   = "not_found"
)

// maxTracked bounds how many task statuses are remembered at once.
const maxTracked = 10000

// Status is the pollable state of one task.
type Status struct {
	Status    string    `json:"status"`
	Progress  string    `json:"progress,omitempty"`
	Message   string    `json:"message,omitempty"`
	Result    any       `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps task statuses for a limited time.
type Store struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Status]
}

func NewStore(ttl time.Duration) *Store {
	return &Store{cache: expirable.NewLRU[string, Status](maxTracked, nil, ttl)}
}

func (s *Store) Set(id string, st Status) {
	st.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(id, st)
}

// Get returns the status of id, or a not_found status.
func (s *Store) Get(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.cache.Get(id)
	if !ok {
		return Status{Status: StatusNotFound}
	}
	return st
}

// Progress reports coarse milestones of a running task.
type Progress func(milestone string)

// Func is the body of a task. Its result is stored on success.
type Func func(ctx context.Context, progress Progress) (any, error)

// Runner executes tasks with at most a fixed number running at once.
type Runner struct {
	store   *Store
	gate    *semaphore.Weighted
	log     *logger.Logger
	timeout time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner admitting maxConcurrent tasks at a time. A
// non-zero timeout bounds each task once admitted.
func NewRunner(store *Store, maxConcurrent int, timeout time.Duration, log *logger.Logger) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   store,
		gate:    semaphore.NewWeighted(int64(maxConcurrent)),
		log:     log,
		timeout: timeout,
		base:    base,
		cancel:  cancel,
	}
}

func (r *Runner) Store() *Store { return r.store }

// Submit queues fn and returns its task ID immediately.
func (r *Runner) Submit(kind string, fn Func) string {
	id := uuid.NewString()
	r.store.Set(id, Status{Status: StatusInQueue})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(id, kind, fn)
	}()
	return id
}

func (r *Runner) run(id, kind string, fn Func) {
	log := r.log.With("task_id", id, "kind", kind)

	if err := r.gate.Acquire(r.base, 1); err != nil {
		r.finish(log, id, kind, nil, fmt.Errorf("task not started: %w", err))
		return
	}
	defer r.gate.Release(1)
	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	ctx := r.base
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log.Info("Task started")
	r.store.Set(id, Status{Status: StatusProcessing})
	progress := func(milestone string) {
		log.Debug("Task progress", "progress", milestone)
		r.store.Set(id, Status{Status: StatusProcessing, Progress: milestone})
	}

	result, err := r.safeCall(ctx, fn, progress)
	r.finish(log, id, kind, result, err)
}

func (r *Runner) safeCall(ctx context.Context, fn Func, progress Progress) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, progress)
}

func (r *Runner) finish(log *logger.Logger, id, kind string, result any, err error) {
	if err != nil {
		log.Error("Task failed", "error", err)
		metrics.Tasks.WithLabelValues(kind, StatusError).Inc()
		r.store.Set(id, Status{Status: StatusError, Message: err.Error()})
		return
	}
	log.Info("Task completed")
	metrics.Tasks.WithLabelValues(kind, StatusCompleted).Inc()
	r.store.Set(id, Status{Status: StatusCompleted, Result: result})
}

// Shutdown cancels queued and running tasks and waits for them to return
// or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
