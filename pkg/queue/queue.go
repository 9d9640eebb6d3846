// Package queue runs background jobs with retry, backoff and a failed-job
// table. Jobs are serialized as JSON envelopes so the Redis driver can hand
// them to workers in another process.
//
//	type VoidGatewayOrderJob struct{ GatewayOrderID string }
//	func (j *VoidGatewayOrderJob) Handle(ctx context.Context) error { ... }
//
//	queue.Register(&VoidGatewayOrderJob{}, func() queue.Job { return &VoidGatewayOrderJob{} })
//	queue.Dispatch(ctx, &VoidGatewayOrderJob{GatewayOrderID: "order_1"})
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/metrics"
)

// Job is the interface every queued job must satisfy.
type Job interface {
	// Handle executes the job. Return a non-nil error to signal failure.
	Handle(ctx context.Context) error
}

// FailedJob holds information about a job that exhausted its retries.
type FailedJob struct {
	Job      Job
	Type     string
	Err      error
	FailedAt time.Time
	Attempts int
}

// Driver is the queue storage backend.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) ([]byte, error)
}

// DelayedDriver is implemented by drivers that can hold a job until a
// point in time on their own.
type DelayedDriver interface {
	PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error
}

// Manager is the central queue hub.
type Manager struct {
	mu       sync.RWMutex
	driver   Driver
	registry map[string]func() Job // type name → constructor
	failed   []FailedJob
	maxRetry int
	backoff  time.Duration
}

var defaultManager = &Manager{
	registry: map[string]func() Job{},
	maxRetry: 3,
	backoff:  time.Second,
	driver:   NewMemoryDriver(),
}

// SetDriver swaps the underlying queue driver (e.g. Redis).
func SetDriver(d Driver) {
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	defaultManager.driver = d
}

// SetMaxRetry sets how many times a failing job is attempted.
func SetMaxRetry(n int) {
	defaultManager.mu.Lock()
	defaultManager.maxRetry = n
	defaultManager.mu.Unlock()
}

// SetBackoff sets the base delay between attempts. Attempt n waits n*d.
func SetBackoff(d time.Duration) {
	defaultManager.mu.Lock()
	defaultManager.backoff = d
	defaultManager.mu.Unlock()
}

// TypeName is the registry key for a job value.
func TypeName(job Job) string { return fmt.Sprintf("%T", job) }

// Register makes a job type available for deserialization. sample is only
// used for its type name.
func Register(sample Job, factory func() Job) {
	defaultManager.mu.Lock()
	defer defaultManager.mu.Unlock()
	defaultManager.registry[TypeName(sample)] = factory
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatch pushes job onto the queue immediately.
func Dispatch(ctx context.Context, job Job) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	return defaultManager.currentDriver().Push(ctx, raw)
}

// DispatchAfter pushes job onto the queue after delay. Drivers that support
// delayed delivery keep the job themselves; otherwise a timer goroutine
// holds it in process.
func DispatchAfter(ctx context.Context, job Job, delay time.Duration) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	d := defaultManager.currentDriver()
	if dd, ok := d.(DelayedDriver); ok {
		return dd.PushDelayed(ctx, raw, delay)
	}

	ctx = context.WithoutCancel(ctx)
	time.AfterFunc(delay, func() {
		if err := d.Push(ctx, raw); err != nil {
			logger.Error("queue: delayed dispatch failed", "type", TypeName(job), "error", err)
		}
	})
	return nil
}

func encode(job Job) ([]byte, error) {
	typeName := TypeName(job)
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal job %s: %w", typeName, err)
	}
	env, err := json.Marshal(envelope{Type: typeName, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return env, nil
}

func (m *Manager) currentDriver() Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.driver
}

// StartWorkers launches n concurrent workers that process jobs from the
// queue. The workers run until ctx is cancelled.
func StartWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		go defaultManager.work(ctx)
	}
	logger.Info("queue: workers started", "count", n)
}

func (m *Manager) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		raw, err := m.currentDriver().Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue: pop failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if raw == nil {
			continue
		}

		m.process(ctx, raw)
	}
}

func (m *Manager) process(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error("queue: bad envelope", "error", err)
		return
	}

	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	m.mu.RUnlock()

	if !ok {
		logger.Warn("queue: unregistered job type", "type", env.Type)
		return
	}

	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		logger.Error("queue: unmarshal payload", "type", env.Type, "error", err)
		return
	}

	m.runWithRetry(ctx, job, env.Type)
}

func (m *Manager) runWithRetry(ctx context.Context, job Job, typeName string) {
	m.mu.RLock()
	maxRetry, backoff := m.maxRetry, m.backoff
	m.mu.RUnlock()

	var lastErr error
	for attempt := 1; attempt <= maxRetry; attempt++ {
		start := time.Now()
		err := job.Handle(ctx)
		if err == nil {
			metrics.RecordQueueJob(typeName, "processed", start)
			logger.Info("queue: job processed", "type", typeName, "attempt", attempt)
			return
		}

		lastErr = err
		metrics.RecordQueueJob(typeName, "retried", start)
		logger.Warn("queue: job failed", "type", typeName, "attempt", attempt, "error", err)
		if attempt == maxRetry {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxRetry
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}

	metrics.RecordQueueJob(typeName, "failed", time.Now())
	m.persistFailed(ctx, job, typeName, lastErr, maxRetry)
	logger.Error("queue: job exhausted retries", "type", typeName, "error", lastErr)
}

// FailedJobs returns a snapshot of all failed jobs seen by this process.
func FailedJobs() []FailedJob {
	defaultManager.mu.RLock()
	defer defaultManager.mu.RUnlock()
	out := make([]FailedJob, len(defaultManager.failed))
	copy(out, defaultManager.failed)
	return out
}
