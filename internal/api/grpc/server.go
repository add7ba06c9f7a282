// Package grpcapi hosts the service's gRPC listener. It carries the standard
// health protocol, keyed to storage readiness, and server reflection.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"recording-transcription-service/internal/observability"
)

// ServiceName is the health-check name for the recording service.
const ServiceName = "recording.transcription.RecordingService"

// Server wraps a grpc.Server with a health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New builds the gRPC server. Both the overall and the named service status
// start as NOT_SERVING until SetServing is called.
func New() *Server {
	g := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor()))

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{grpc: g, health: hs}
}

// SetServing flips the reported health status.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	return s.grpc.Serve(lis)
}

// GracefulStop marks the service not serving and drains in-flight calls.
func (s *Server) GracefulStop() {
	log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
