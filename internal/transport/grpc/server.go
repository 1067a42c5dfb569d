// Package grpcx serves the operational gRPC endpoint: health checks and
// reflection for the music room process.
package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const ServiceName = "music-room"

type Config struct {
	Addr        string        // ":9090"
	CallTimeout time.Duration // 10s
}

type Server struct {
	cfg    Config
	srv    *grpc.Server
	health *health.Server
}

func New(cfg Config) *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(cfg.CallTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{cfg: cfg, srv: srv, health: hs}
}

// Serve runs on an existing listener until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("grpc: listening", slog.String("addr", lis.Addr().String()))
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.srv.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}
