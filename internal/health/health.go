package health

import (
	"context"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the grpc_health_v1 service reporting courier reachability.
const ServiceName = "awb.courier"

const DefaultInterval = time.Minute

type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor keeps the gRPC health status in line with periodic courier pings.
// The process itself ("") stays SERVING while the courier is down.
type Monitor struct {
	srv      *health.Server
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewMonitor(p Pinger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_UNKNOWN)
	return &Monitor{srv: srv, pinger: p, interval: interval, timeout: 20 * time.Second}
}

func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.srv)
}

// Probe pings the courier once and publishes the result.
func (m *Monitor) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := m.pinger.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "courier ping failed", zap.Error(err))
	}
	m.srv.SetServingStatus(ServiceName, status)
	return status
}

// Run probes on every tick until ctx ends, then marks everything NOT_SERVING.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.srv.Shutdown()
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
