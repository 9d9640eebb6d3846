package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

// ErrQueueFull is returned by the memory driver when its buffer is full.
var ErrQueueFull = errors.New("queue: memory driver is full")

// MemoryDriver keeps jobs in process. It serves single-node deployments
// and tests; jobs are lost on restart.
type MemoryDriver struct {
	mu       sync.Mutex
	ready    [][]byte
	delayed  int
	capacity int
	wake     chan struct{}
}

// NewMemoryDriver holds up to 1000 ready jobs.
func NewMemoryDriver() *MemoryDriver { return NewMemoryDriverSize(1000) }

func NewMemoryDriverSize(capacity int) *MemoryDriver {
	return &MemoryDriver{capacity: capacity, wake: make(chan struct{}, 1)}
}

// Push never blocks; a full buffer is reported as ErrQueueFull.
func (d *MemoryDriver) Push(_ context.Context, payload []byte) error {
	d.mu.Lock()
	if len(d.ready) >= d.capacity {
		d.mu.Unlock()
		return ErrQueueFull
	}
	d.ready = append(d.ready, payload)
	d.mu.Unlock()

	d.signal()
	return nil
}

// Pop waits for the oldest job or ctx.
func (d *MemoryDriver) Pop(ctx context.Context) ([]byte, error) {
	for {
		d.mu.Lock()
		if len(d.ready) > 0 {
			payload := d.ready[0]
			d.ready[0] = nil
			d.ready = d.ready[1:]
			more := len(d.ready) > 0
			d.mu.Unlock()
			if more {
				d.signal()
			}
			return payload, nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.wake:
		}
	}
}

// PushDelayed holds payload on a timer, then pushes it.
func (d *MemoryDriver) PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error {
	d.mu.Lock()
	d.delayed++
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	time.AfterFunc(delay, func() {
		d.mu.Lock()
		d.delayed--
		d.mu.Unlock()
		if err := d.Push(ctx, payload); err != nil {
			logger.Error("queue: delayed job dropped", "error", err)
		}
	})
	return nil
}

// Len reports how many jobs are ready.
func (d *MemoryDriver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready)
}

// Delayed reports how many jobs are still waiting on their timer.
func (d *MemoryDriver) Delayed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delayed
}

func (d *MemoryDriver) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
