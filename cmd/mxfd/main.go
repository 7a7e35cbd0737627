// Command mxfd runs the Model Exchange Framework server: the event bus,
// authentication, per-agent ORPAR runtimes, tool registry and MCP manager,
// task service, code-execution sandbox, and channel-monitor bridges,
// reachable over a websocket control plane with a gRPC health/reflection
// side-channel. Grounded on the teacher's cmd/nexus CLI shape
// (cmd/nexus/main.go), narrowed to the one command this spec needs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mxfd",
		Short: "mxfd - Model Exchange Framework server",
		Long: `mxfd hosts autonomous LLM-driven agents behind a channel-scoped
duplex control plane: agents authenticate, join channels, exchange
messages and tool calls, and are observed by read-only spectator bridges.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}
