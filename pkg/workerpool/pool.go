// Package workerpool runs async event listeners (audit writes, live-feed
// fan-out, payment confirmations) on a fixed set of goroutines.
//
//	pool := workerpool.New(8)
//	event.UsePool(pool)
//	...
//	if err := pool.Shutdown(ctx); err != nil {
//	    // listeners still running when the budget ran out
//	}
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

var (
	// ErrPoolFull is returned by Submit when every worker is busy and the
	// backlog is at capacity.
	ErrPoolFull   = errors.New("workerpool: pool is full")
	ErrPoolClosed = errors.New("workerpool: pool is closed")
)

type Pool struct {
	mu     sync.RWMutex // closed vs. sends on tasks
	closed bool
	tasks  chan func()
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once

	running  atomic.Int64
	panicked atomic.Int64
}

// New starts size workers with a backlog of 2*size tasks.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func(), size*2),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(size)
	for range size {
		go func() {
			defer wg.Done()
			for task := range p.tasks {
				p.run(task)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
	return p
}

// Submit queues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// SubmitWait blocks until the backlog has room, ctx ends or the pool
// closes.
func (p *Pool) SubmitWait(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolClosed
	}
}

// Backlog is the number of tasks queued but not started.
func (p *Pool) Backlog() int { return len(p.tasks) }

// Running is the number of tasks executing right now.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Panics counts tasks that panicked since the pool started.
func (p *Pool) Panics() int { return int(p.panicked.Load()) }

// Shutdown stops intake and waits for the backlog to drain. When ctx ends
// first it returns ctx.Err() and the workers finish on their own.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(task func()) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			logger.Error("workerpool: task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
