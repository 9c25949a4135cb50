// Package health exposes the standard gRPC health service so load balancers
// and orchestrators can probe the gatehouse process and its databases.
package health

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *zap.Logger

	stopOnce sync.Once
}

// New registers the health service on a fresh gRPC server. Every service
// starts NOT_SERVING until SetServing flips it.
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, logger: logger.Named("health")}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	err := s.grpc.Serve(lis)
	if err == grpc.ErrServerStopped {
		return nil
	}
	return err
}

// SetServing updates the status for service ("" is the whole process).
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// Watch pings p every interval and mirrors the result onto service until ctx
// is done. The first ping happens immediately.
func (s *Server) Watch(ctx context.Context, service string, p Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	last := true
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := p.PingContext(pingCtx)
		cancel()
		ok := err == nil
		if ok != last {
			if ok {
				s.logger.Info("database reachable again", zap.String("service", service))
			} else {
				s.logger.Warn("database ping failed", zap.String("service", service), zap.Error(err))
			}
			last = ok
		}
		s.SetServing(service, ok)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Stop marks everything NOT_SERVING and stops the gRPC server. Safe to call
// more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}
