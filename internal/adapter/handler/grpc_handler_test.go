package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func servingStatus(t *testing.T, r *Readiness, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestReadiness_AllChecksPass(t *testing.T) {
	r := NewReadiness(zap.NewNop(),
		Check{Name: "redis", Probe: func(context.Context) error { return nil }},
		Check{Name: "rabbitmq", Probe: func(context.Context) error { return nil }},
	)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, ""))

	results, ok := r.Evaluate(context.Background())
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"redis": "ok", "rabbitmq": "ok"}, results)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, r, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, r, ServiceName))
}

func TestReadiness_FailingCheck(t *testing.T) {
	healthy := true
	r := NewReadiness(nil, Check{Name: "redis", Probe: func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	}})

	_, ok := r.Evaluate(context.Background())
	require.True(t, ok)

	healthy = false
	results, ok := r.Evaluate(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "connection refused", results["redis"])
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, ServiceName))
}

func TestReadiness_Shutdown(t *testing.T) {
	r := NewReadiness(nil)
	_, ok := r.Evaluate(context.Background())
	require.True(t, ok)

	r.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, ""))

	r.Evaluate(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, r, ""), "updates after shutdown are ignored")
}
