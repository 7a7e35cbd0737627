package daemon

import (
	"context"
	"fmt"
	"net"
)

// Start brings up the HTTP surface (health, metrics, websocket) then
// blocks serving the gRPC control plane, grounded on the teacher's
// lifecycle.go Start/startGRPCServer (internal/gateway/lifecycle.go):
// HTTP starts first since nothing blocks on it, and gRPC's Serve call is
// what keeps the process alive until Stop is called or it errors out.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	s.taskScheduler.Start()

	for _, spec := range s.spectators {
		go spec.Run(ctx)
	}

	s.grpc = newGRPCServer(s.logger)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info(ctx, "starting grpc server", "addr", addr)
	if err := s.grpc.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop tears down every subsystem in order, logging rather than aborting
// on an individual failure, mirroring the teacher's Stop
// (internal/gateway/lifecycle.go).
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info(ctx, "stopping server")

	s.taskScheduler.Stop()

	if s.grpc != nil {
		s.grpc.server.GracefulStop()
	}
	s.stopHTTPServer(ctx)

	if err := s.MCP.StopAll(ctx); err != nil {
		s.logger.Error(ctx, "error stopping mcp servers", "error", err)
	}

	s.Close(ctx)
	return nil
}
