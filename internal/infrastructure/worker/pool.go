// Package worker runs fire-and-forget tasks on a fixed set of goroutines.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task is one unit of background work. ctx is cancelled when the pool stops.
type Task func(ctx context.Context)

// Pool is a bounded task queue drained by a fixed number of workers.
// A panicking task is logged and does not take its worker down.
type Pool struct {
	name   string
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewPool starts workerNum workers reading from a queue of bufferSize tasks.
func NewPool(name string, workerNum, bufferSize int) *Pool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		tasks:  make(chan Task, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(workerNum)
	for i := 0; i < workerNum; i++ {
		go p.startWorker()
	}
	zap.L().Info("worker pool started",
		zap.String("pool", name),
		zap.Int("workers", workerNum),
		zap.Int("buffer", bufferSize),
	)
	return p
}

// Submit queues task and reports whether it was accepted.
// When the queue is full the task is dropped with a warning; callers never block.
func (p *Pool) Submit(task Task) (ok bool) {
	if task == nil {
		return false
	}
	defer func() {
		// sending on the closed queue after Stop
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case <-p.ctx.Done():
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	default:
		zap.L().Warn("worker pool queue full, task dropped", zap.String("pool", p.name))
		return false
	}
}

// Stop stops accepting tasks, lets queued tasks finish and waits for the workers
// until ctx expires, then cancels whatever is still running.
func (p *Pool) Stop(ctx context.Context) {
	p.once.Do(func() {
		close(p.tasks)
	})
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		zap.L().Warn("worker pool stop timed out", zap.String("pool", p.name))
	}
	p.cancel()
}

func (p *Pool) startWorker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task; a panic is logged and the worker keeps going.
func (p *Pool) run(task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("worker task panic", zap.String("pool", p.name), zap.Any("recover", rec))
		}
	}()
	task(p.ctx)
}
