package handler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported next to the
// server-wide "" entry.
const ServiceName = "correlator"

// Check is one readiness probe, such as a Redis ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Readiness runs the readiness probes and mirrors their result into the
// standard grpc.health.v1 service.
type Readiness struct {
	checks  []Check
	health  *health.Server
	logger  *zap.Logger
	timeout time.Duration

	mu    sync.Mutex
	ready bool
}

func NewReadiness(logger *zap.Logger, checks ...Check) *Readiness {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Readiness{
		checks:  checks,
		health:  health.NewServer(),
		logger:  logger.Named("health"),
		timeout: 2 * time.Second,
	}
	r.setServing(false)
	return r
}

func (r *Readiness) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.health)
}

// Evaluate runs every probe and returns per-check results ("ok" or the
// error text) and whether all of them passed.
func (r *Readiness) Evaluate(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make(map[string]string, len(r.checks))
	ready := true
	for _, c := range r.checks {
		if err := c.Probe(ctx); err != nil {
			results[c.Name] = err.Error()
			ready = false
			continue
		}
		results[c.Name] = "ok"
	}

	r.mu.Lock()
	changed := r.ready != ready
	r.ready = ready
	r.mu.Unlock()

	if changed {
		r.logger.Info("readiness changed", zap.Bool("ready", ready), zap.Any("checks", results))
	}
	r.setServing(ready)
	return results, ready
}

// Run re-evaluates readiness every interval until ctx is done.
func (r *Readiness) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evaluate(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (r *Readiness) Shutdown() {
	r.health.Shutdown()
}

func (r *Readiness) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.health.SetServingStatus("", status)
	r.health.SetServingStatus(ServiceName, status)
}
