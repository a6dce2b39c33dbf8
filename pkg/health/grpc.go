package health

import (
	"context"

	"examprep-marketplace/pkg/errutil"

	"github.com/gogo/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves grpc.health.v1 from the same dependency checks as /readyz.
type GRPCServer struct {
	grpc_health_v1.UnimplementedHealthServer
	checker HealthService
}

func NewGRPCServer(checker HealthService) *GRPCServer {
	return &GRPCServer{checker: checker}
}

func (s *GRPCServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if s.checker == nil {
		return nil, errutil.ToGRPCError(errutil.ServiceUnavailable("health checker not ready", nil))
	}

	res := s.checker.Check(ctx)
	if res.Status != StatusHealthy {
		zap.L().Warn("grpc health check failing", zap.Any("deps", res.Deps))
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *GRPCServer) Watch(req *grpc_health_v1.HealthCheckRequest, srv grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "Watch method not implemented")
}

// RegisterGRPC mounts the health service on srv.
func RegisterGRPC(srv *grpc.Server, checker HealthService) {
	grpc_health_v1.RegisterHealthServer(srv, NewGRPCServer(checker))
}
