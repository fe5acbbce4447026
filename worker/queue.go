// Package worker runs fire-and-forget tasks on a fixed pool of goroutines
// with a per-task timeout, panic recovery and drain on shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueClosed = errors.New("worker queue shut down")
	ErrQueueFull   = errors.New("worker queue full")
)

// Task is a named unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Reporter is told how each task ended. metrics.Collector implements it.
type Reporter interface {
	TaskDone(task string, err error)
}

type Queue struct {
	timeout  time.Duration
	log      *logrus.Logger
	reporter Reporter

	mu     sync.RWMutex
	closed bool
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue starts workers goroutines reading from a buffer of size tasks.
func NewQueue(workers, size int, timeout time.Duration, log *logrus.Logger, reporter Reporter) *Queue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		timeout:  timeout,
		log:      log,
		reporter: reporter,
		tasks:    make(chan Task, size),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Submit enqueues t without blocking.
func (q *Queue) Submit(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits up to timeout for queued ones.
// Tasks still running after the deadline see their context cancelled.
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-time.After(timeout):
		q.cancel()
		<-done
		return fmt.Errorf("worker queue: drain timed out after %s", timeout)
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				q.log.WithFields(logrus.Fields{"task": t.Name, "stack": string(debug.Stack())}).Error("worker: task panicked")
			}
		}()
		err = t.Run(ctx)
	}()

	if err != nil {
		q.log.WithError(err).WithField("task", t.Name).Error("worker: task failed")
	}
	if q.reporter != nil {
		q.reporter.TaskDone(t.Name, err)
	}
}
