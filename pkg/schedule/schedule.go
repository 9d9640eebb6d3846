// Package schedule runs recurring tasks inside the server process.
//
//	schedule.Hourly().Name("orders:expire-pending").WithoutOverlapping().Run(expire)
//	schedule.Cron("0 3 * * *").Name("nightly").Run(report)
//
//	schedule.Start(ctx)
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

// Task is the function signature for a scheduled task.
type Task func(ctx context.Context) error

type entry struct {
	id        string
	interval  time.Duration
	cronExpr  string // "" unless using Cron()
	task      Task
	noOverlap bool

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// Schedule is a fluent builder for a single entry before it is registered.
type Schedule struct {
	e *entry
}

var (
	regMu   sync.Mutex
	entries []*entry
)

// EveryMinute schedules the task to run every 60 seconds.
func EveryMinute() *Schedule { return Every(1).Minutes() }

// Every starts a fluent builder with n units.
func Every(n int) *FreqBuilder { return &FreqBuilder{n: n} }

func Hourly() *Schedule { return Every(1).Hours() }
func Daily() *Schedule  { return Every(24).Hours() }

// Cron schedules using a 5-field cron expression (min hour dom mon dow).
func Cron(expr string) *Schedule {
	return &Schedule{e: &entry{cronExpr: expr}}
}

type FreqBuilder struct{ n int }

func (f *FreqBuilder) Seconds() *Schedule {
	return &Schedule{e: &entry{interval: time.Duration(f.n) * time.Second}}
}
func (f *FreqBuilder) Minutes() *Schedule {
	return &Schedule{e: &entry{interval: time.Duration(f.n) * time.Minute}}
}
func (f *FreqBuilder) Hours() *Schedule {
	return &Schedule{e: &entry{interval: time.Duration(f.n) * time.Hour}}
}

// WithoutOverlapping skips a run while the previous one is still executing.
func (s *Schedule) WithoutOverlapping() *Schedule {
	s.e.noOverlap = true
	return s
}

// Name gives the entry an identifier for logging and schedule:run.
func (s *Schedule) Name(id string) *Schedule {
	s.e.id = id
	return s
}

// Run registers the task. Call Start to begin dispatching.
func (s *Schedule) Run(fn Task) {
	s.e.task = fn
	regMu.Lock()
	defer regMu.Unlock()
	if s.e.id == "" {
		s.e.id = fmt.Sprintf("task-%d", len(entries)+1)
	}
	entries = append(entries, s.e)
}

// Start ticks every second in the background and dispatches due tasks
// until ctx is cancelled.
func Start(ctx context.Context) {
	go loop(ctx)
	logger.Info("schedule: scheduler started", "tasks", len(snapshot()))
}

func loop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule: scheduler stopped")
			return
		case now := <-ticker.C:
			for _, e := range snapshot() {
				if e.due(now) {
					go e.dispatch(ctx, now)
				}
			}
		}
	}
}

func snapshot() []*entry {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]*entry, len(entries))
	copy(out, entries)
	return out
}

func (e *entry) due(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cronExpr != "" {
		// Fire at most once per matching minute.
		return now.Second() == 0 && matchCron(e.cronExpr, now) &&
			!now.Truncate(time.Minute).Equal(e.lastRun.Truncate(time.Minute))
	}
	return e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.interval
}

func (e *entry) dispatch(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	if e.noOverlap && e.running {
		e.mu.Unlock()
		logger.Warn("schedule: skipping overlapping task", "id", e.id)
		return nil
	}
	e.running = true
	e.lastRun = now
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		if r := recover(); r != nil {
			logger.Error("schedule: task panicked", "id", e.id, "panic", r)
		}
	}()

	start := time.Now()
	if err := e.task(ctx); err != nil {
		logger.Error("schedule: task failed", "id", e.id, "error", err)
		return err
	}
	logger.Info("schedule: task finished", "id", e.id, "duration", time.Since(start))
	return nil
}

// RunNow runs the named task once on the calling goroutine.
func RunNow(ctx context.Context, id string) error {
	for _, e := range snapshot() {
		if e.id == id {
			return e.dispatch(ctx, time.Now())
		}
	}
	return fmt.Errorf("schedule: no task named %q", id)
}

// List returns the registered entries as "id  [frequency]", sorted by id.
func List() []string {
	current := snapshot()
	out := make([]string, 0, len(current))
	for _, e := range current {
		freq := e.cronExpr
		if freq == "" {
			freq = e.interval.String()
		}
		out = append(out, fmt.Sprintf("%s  [%s]", e.id, freq))
	}
	sort.Strings(out)
	return out
}

// Reset drops every registered entry.
func Reset() {
	regMu.Lock()
	entries = nil
	regMu.Unlock()
}

// Minimal cron matcher. Fields: * | n | */step | a-b | a,b,c

func matchCron(expr string, t time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	vals := []int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, f := range fields {
		if !matchField(f, vals[i]) {
			return false
		}
	}
	return true
}

func matchField(field string, val int) bool {
	for _, part := range strings.Split(field, ",") {
		if matchPart(part, val) {
			return true
		}
	}
	return false
}

func matchPart(part string, val int) bool {
	if part == "*" {
		return true
	}
	if strings.HasPrefix(part, "*/") {
		var step int
		if _, err := fmt.Sscanf(part[2:], "%d", &step); err != nil {
			return false
		}
		return step > 0 && val%step == 0
	}
	if strings.Contains(part, "-") {
		var lo, hi int
		if _, err := fmt.Sscanf(part, "%d-%d", &lo, &hi); err != nil {
			return false
		}
		return val >= lo && val <= hi
	}
	var n int
	if _, err := fmt.Sscanf(part, "%d", &n); err != nil {
		return false
	}
	return n == val
}
