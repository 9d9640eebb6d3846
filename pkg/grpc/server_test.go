package grpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"

	bgrpc "github.com/shashiranjanraj/bunkar/pkg/grpc"
)

func TestHealthServing(t *testing.T) {
	h := bgrpc.NewHealthServer(func(context.Context) error { return nil })
	resp, err := h.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestHealthNotServingWhenDatabaseDown(t *testing.T) {
	h := bgrpc.NewHealthServer(
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("db down") },
	)
	resp, err := h.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestNewServerRegistersHealth(t *testing.T) {
	srv := bgrpc.NewServer()
	defer srv.Stop()
	_, ok := srv.GetServiceInfo()[grpc_health_v1.Health_ServiceDesc.ServiceName]
	assert.True(t, ok)
}
