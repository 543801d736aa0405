package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/tweetheart/internal/config"
)

// HealthService is the service name reported next to the overall status.
const HealthService = "tweetheart"

// GRPCServer exposes grpc.health.v1 and reflection for probes and grpcurl.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	addr   string
	log    *slog.Logger
}

func NewGRPCServer(cfg *config.Config, log *slog.Logger) *GRPCServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(srv)

	g := &GRPCServer{
		srv:    srv,
		health: hs,
		addr:   fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port),
		log:    log,
	}
	g.SetServing(true)
	return g
}

func (g *GRPCServer) Addr() string { return g.addr }

// SetServing flips the reported status of the whole server and HealthService.
func (g *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthService, status)
}

// Watch runs check every interval and mirrors the result into the health
// status until ctx is done.
func (g *GRPCServer) Watch(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := check(ctx)
			if ok := err == nil; ok != serving {
				serving = ok
				g.SetServing(ok)
				g.log.Warn("grpc health changed", "serving", ok, "err", err)
			}
		}
	}
}

// Serve blocks serving on lis.
func (g *GRPCServer) Serve(lis net.Listener) error {
	return g.srv.Serve(lis)
}

// ListenAndServe listens on the configured address and serves.
func (g *GRPCServer) ListenAndServe() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	return g.Serve(lis)
}

// Stop marks the server as not serving and drains in-flight RPCs.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
}
