package grpcserver

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hound/internal/entity"
	"hound/internal/pipeline"
)

// Server exposes the standard gRPC health service. The empty service name
// reports the process; every entity id is reported as its own service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	registry   *entity.Registry
}

// New creates a health server for the registered entities
func New(registry *entity.Registry) *Server {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpcServer: gs, health: hs, registry: registry}
	for _, id := range registry.Names() {
		hs.SetServingStatus(id, healthpb.HealthCheckResponse_SERVING)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Health returns the underlying health server
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// OnStateChanged marks an entity NOT_SERVING after a failed call
func (s *Server) OnStateChanged(entityID string, _ pipeline.State) {
	e, err := s.registry.Get(entityID)
	if err != nil {
		return
	}

	status := healthpb.HealthCheckResponse_SERVING
	if e.LastStage() == pipeline.StageFailed {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(entityID, status)
}

// ListenAndServe serves on addr until Stop is called
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Infof("[gRPC] Health service listening on %s", addr)
	return s.grpcServer.Serve(lis)
}

// Stop marks everything NOT_SERVING and stops the server
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

var _ pipeline.StateListener = (*Server)(nil)
