package server

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/humidistat/internal/core"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "humidistat"

// GRPCServer wraps a gRPC server exposing the standard health service.
type GRPCServer struct {
	Server   *grpc.Server
	Listener net.Listener
	health   *health.Server
}

func NewGRPCServer(addr string) (*GRPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	g := &GRPCServer{Server: s, Listener: ln, health: hs}
	g.SetHealth(core.HealthHealthy)
	return g, nil
}

// SetHealth maps plugin health onto the serving status. DEGRADED still serves.
func (s *GRPCServer) SetHealth(status core.HealthStatus) {
	serving := healthpb.HealthCheckResponse_SERVING
	if status == core.HealthError {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(ServiceName, serving)
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

// Stop marks the service as not serving and drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
	_ = s.Listener.Close()
}
