// Package admin serves the operator-facing gRPC endpoints of the relay.
package admin

import (
	"errors"
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RelayService is the name probes can ask for besides the empty server-wide name.
const RelayService = "chat.relay"

type Server struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

// NewServer starts NOT_SERVING until the relay loop is up.
func NewServer(log *slog.Logger) *Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
		))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)

	server := &Server{log: log, server: s, health: h}
	server.SetServing(false)
	return server
}

func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayService, status)
}

// Serve blocks until Stop is called.
func (s *Server) Serve(listener net.Listener) error {
	s.log.Info("Starting admin gRPC server", "address", listener.Addr().String())
	for serviceName := range s.server.GetServiceInfo() {
		s.log.Debug("gRPC exposed services", "name", serviceName)
	}
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
