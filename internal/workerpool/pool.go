// Package workerpool implements the fixed worker pool (C7): a bounded
// number of goroutines draining a bounded task queue, rejecting instead
// of growing when the queue is full.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is one unit of work submitted to the pool.
type Task func()

// SubmitResult is C7's Submit() contract. Unlike the silent-drop pool
// this one is adapted from, a caller here always learns whether its task
// was accepted, so an HTTP handler can turn Rejected into a 503.
type SubmitResult int

const (
	Accepted SubmitResult = iota
	Rejected
)

// DefaultQueueCapacity is Q, spec.md §4.7/§6's configurable task queue
// capacity default.
const DefaultQueueCapacity = 10000

// Pool is C7.
type Pool struct {
	workerCount int
	taskQueue   chan Task
	logger      zerolog.Logger

	wg       sync.WaitGroup
	rejected atomic.Int64
	panics   atomic.Int64
}

// New constructs a Pool with workerCount workers and a task queue of
// capacity queueCapacity (Q). queueCapacity <= 0 takes DefaultQueueCapacity.
func New(workerCount int, queueCapacity int, logger zerolog.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Pool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, queueCapacity),
		logger:      logger,
	}
}

// Start launches the worker goroutines. ctx cancellation causes workers to
// stop pulling new tasks and exit once the queue drains or immediately,
// whichever happens first in the select.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.runTask(task)
		case <-ctx.Done():
			return
		}
	}
}

// runTask isolates a single task's panic so one bad task never takes down
// a worker goroutine (and with it, 1/workerCount of total capacity).
func (p *Pool) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error().
				Interface("panic", r).
				Msg("worker pool: recovered task panic")
		}
	}()
	task()
}

// Submit enqueues task for asynchronous execution. It never blocks: a full
// queue yields Rejected instead of growing goroutines or queue depth
// without bound.
func (p *Pool) Submit(task Task) SubmitResult {
	select {
	case p.taskQueue <- task:
		return Accepted
	default:
		p.rejected.Add(1)
		return Rejected
	}
}

// QueueDepth reports the number of tasks currently queued, for /health.
func (p *Pool) QueueDepth() int {
	return len(p.taskQueue)
}

// Rejected reports the cumulative number of tasks rejected for a full
// queue, for /health.
func (p *Pool) Rejected() int64 {
	return p.rejected.Load()
}

// Stop closes the task queue and waits for all workers to drain it and
// exit. Safe to call once; callers should cancel the Start context first
// if they want in-flight tasks abandoned rather than drained.
func (p *Pool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}
