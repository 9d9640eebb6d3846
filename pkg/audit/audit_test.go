package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/bunkar/pkg/audit"
)

func TestMemoryTrail(t *testing.T) {
	ctx := context.Background()
	m := audit.NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Record(ctx, audit.Entry{Time: base.Add(time.Minute), Action: "order.paid", OrderID: "o1", From: "PENDING", To: "PAID"}))
	require.NoError(t, m.Record(ctx, audit.Entry{Time: base, Action: "order.created", OrderID: "o1"}))
	require.NoError(t, m.Record(ctx, audit.Entry{Action: "order.created", OrderID: "o2"}))

	trail, err := m.Trail(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "order.created", trail[0].Action)
	assert.Equal(t, "PAID", trail[1].To)
	assert.Equal(t, 3, m.Len())

	other, _ := m.Trail(ctx, "o2")
	require.Len(t, other, 1)
	assert.False(t, other[0].Time.IsZero())
}
