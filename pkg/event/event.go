// Package event is an in-process event dispatcher. Sync listeners run on
// the firing goroutine; async listeners run on a bounded worker pool with
// a context detached from the request.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/workerpool"
)

// Handler receives an event payload.
type Handler func(ctx context.Context, payload any)

type listener struct {
	handle Handler
	async  bool
}

var (
	mu        sync.RWMutex
	listeners = map[string][]listener{}
	pool      *workerpool.Pool
)

// UsePool sets the pool that runs async listeners. Without one, async
// listeners get their own goroutine.
func UsePool(p *workerpool.Pool) {
	mu.Lock()
	pool = p
	mu.Unlock()
}

// Listen registers a synchronous handler for name.
func Listen(name string, h Handler) { register(name, h, false) }

// ListenAsync registers a handler that runs off the firing goroutine.
func ListenAsync(name string, h Handler) { register(name, h, true) }

func register(name string, h Handler, async bool) {
	mu.Lock()
	defer mu.Unlock()
	listeners[name] = append(listeners[name], listener{handle: h, async: async})
}

// Fire dispatches payload to every listener of name. Sync listeners finish
// before Fire returns.
func Fire(ctx context.Context, name string, payload any) {
	mu.RLock()
	ls := make([]listener, len(listeners[name]))
	copy(ls, listeners[name])
	p := pool
	mu.RUnlock()

	for _, l := range ls {
		if !l.async {
			runSafe(ctx, name, l.handle, payload)
			continue
		}

		bg := context.WithoutCancel(ctx)
		h := l.handle
		task := func() { runSafe(bg, name, h, payload) }
		if p == nil {
			go task()
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.SubmitWait(waitCtx, task)
		cancel()
		if err != nil {
			logger.WithCtx(ctx).Error("event: async listener dropped", "event", name, "error", err)
		}
	}
}

func runSafe(ctx context.Context, name string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithCtx(ctx).Error("event: listener panicked", "event", name, "panic", r)
		}
	}()
	h(ctx, payload)
}

// Flush removes all listeners.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	listeners = map[string][]listener{}
}
