package daemon

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/mxf-project/mxf/internal/observability"
)

// grpcServer is the process's gRPC control plane: a standard health
// service plus reflection, grounded on the teacher's internal/gateway
// grpc.NewServer construction (internal/gateway/server.go). MXF exposes no
// bespoke RPC service of its own (every operation is driven over the
// websocket transport in ws.go), so health/reflection is the entire
// surface until a control-plane .proto is warranted.
type grpcServer struct {
	server  *grpc.Server
	health  *health.Server
	logger  *observability.Logger
}

func newGRPCServer(logger *observability.Logger) *grpcServer {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(logger)),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor(logger)),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("mxf", grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(server)

	return &grpcServer{server: server, health: healthServer, logger: logger}
}

func loggingUnaryInterceptor(logger *observability.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if logger != nil {
			logger.Debug(ctx, "grpc unary call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		}
		return resp, err
	}
}

func loggingStreamInterceptor(logger *observability.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		if logger != nil {
			logger.Debug(ss.Context(), "grpc stream call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		}
		return err
	}
}
