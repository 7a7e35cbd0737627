package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mxf-project/mxf/internal/config"
	"github.com/mxf-project/mxf/internal/daemon"
	"github.com/mxf-project/mxf/internal/observability"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mxfd server",
		Long: `Start mxfd with its websocket control plane and gRPC health side-channel.

The server will:
1. Load configuration from the specified file
2. Build the event bus, auth/session layer, and tool registry
3. Connect configured LLM providers and external MCP servers
4. Start the sandbox pool and channel-monitor spectator bridges
5. Serve the websocket control plane and gRPC health service

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mxf.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)

	var tracer *observability.Tracer
	if cfg.Tracing.Enabled {
		tracer, err = observability.NewTracer(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
	} else {
		tracer = observability.NoopTracer()
	}

	watcher := config.NewWatcher(configPath, logger, func(*config.Config) {
		logger.Info(ctx, "config file changed on disk; restart mxfd to apply it")
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn(ctx, "failed to start config watcher", "error", err)
	} else {
		defer watcher.Stop()
	}

	server, err := daemon.NewServer(cfg, logger, metrics, tracer)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	logger.Info(ctx, "mxfd started",
		"grpc_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort),
		"http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info(context.Background(), "shutdown signal received, stopping mxfd")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info(context.Background(), "mxfd stopped gracefully")
	return nil
}
