package event_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/bunkar/pkg/event"
	"github.com/shashiranjanraj/bunkar/pkg/workerpool"
)

type ctxKey struct{}

func TestFireSyncAndAsync(t *testing.T) {
	event.Flush()
	pool := workerpool.New(2)
	defer func() { _ = pool.Shutdown(context.Background()) }()
	event.UsePool(pool)
	defer event.UsePool(nil)

	var syncCalls, async atomic.Int32
	event.Listen("order.paid", func(context.Context, any) { syncCalls.Add(1) })
	event.ListenAsync("order.paid", func(ctx context.Context, payload any) {
		if ctx.Err() == nil && ctx.Value(ctxKey{}) == "req" && payload == "o1" {
			async.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req"))
	event.Fire(ctx, "order.paid", "o1")
	cancel()

	assert.Equal(t, int32(1), syncCalls.Load())
	assert.Eventually(t, func() bool { return async.Load() == 1 }, time.Second, 5*time.Millisecond,
		"async listener keeps request values but not its cancellation")
}

func TestListenerPanicIsContained(t *testing.T) {
	event.Flush()
	var after atomic.Int32
	event.Listen("boom", func(context.Context, any) { panic("listener") })
	event.Listen("boom", func(context.Context, any) { after.Add(1) })

	assert.NotPanics(t, func() { event.Fire(context.Background(), "boom", nil) })
	assert.Equal(t, int32(1), after.Load())
}

func TestFireWithoutListeners(t *testing.T) {
	event.Flush()
	assert.NotPanics(t, func() { event.Fire(context.Background(), "nobody", 1) })
}
