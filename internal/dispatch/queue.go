// Package dispatch runs post-commit side effects (realtime pushes, broker
// publishes, emails) off the request path. Tasks never report back to the
// submitter: failures and panics are logged and counted, then dropped.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var sideEffectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "side_effects_total",
		Help: "Post-commit side effects by task and result",
	},
	[]string{"task", "result"},
)

var (
	ErrQueueFull   = errors.New("side-effect queue is full")
	ErrQueueClosed = errors.New("side-effect queue is closed")
)

// Task is one side effect. The context is cancelled after the task timeout.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

type Queue struct {
	jobs        chan job
	workers     int
	taskTimeout time.Duration
	logger      *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewQueue(size, workers int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobs:        make(chan job, size),
		workers:     workers,
		taskTimeout: 10 * time.Second,
		logger:      logger.Named("dispatch"),
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Submit enqueues task without blocking. A full or closed queue drops the
// task, logs it, and returns the reason.
func (q *Queue) Submit(name string, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		sideEffectsTotal.WithLabelValues(name, "dropped").Inc()
		q.logger.Warn("side effect dropped, queue closed", zap.String("task", name))
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job{name: name, task: task}:
		return nil
	default:
		sideEffectsTotal.WithLabelValues(name, "dropped").Inc()
		q.logger.Warn("side effect dropped, queue full", zap.String("task", name))
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for queued ones until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.taskTimeout)
	defer cancel()

	err := safeRun(ctx, j.task)
	if err != nil {
		sideEffectsTotal.WithLabelValues(j.name, "failed").Inc()
		q.logger.Error("side effect failed", zap.String("task", j.name), zap.Error(err))
		return
	}
	sideEffectsTotal.WithLabelValues(j.name, "ok").Inc()
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}
