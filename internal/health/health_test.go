package health

import (
	"context"
	"errors"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func check(t *testing.T, m *Monitor, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := m.srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestProbeTracksCourier(t *testing.T) {
	var pingErr error
	m := NewMonitor(pingFunc(func(context.Context) error { return pingErr }), 0)

	if got := check(t, m, ServiceName); got != healthpb.HealthCheckResponse_UNKNOWN {
		t.Fatalf("expected UNKNOWN before the first probe, got %v", got)
	}

	m.Probe(context.Background())
	if got := check(t, m, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}

	pingErr = errors.New("login failed")
	m.Probe(context.Background())
	if got := check(t, m, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
	if got := check(t, m, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("process status must not follow the courier, got %v", got)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	m := NewMonitor(pingFunc(func(context.Context) error { return nil }), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Run(ctx)
	if got := check(t, m, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
