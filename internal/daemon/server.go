// Package daemon wires every MXF component (C1-C10) into one running
// server process: the event bus, the auth/session layer, per-agent ORPAR
// runtimes, the tool registry and external MCP manager, the task and
// inference services, the code-execution sandbox, the prompt builder, and
// the channel-monitor spectator bridges. Grounded on the teacher's
// gateway.Server (internal/gateway/server.go): optional subsystems are
// constructed conditionally and degrade gracefully rather than aborting
// startup, and the same gRPC-health-plus-HTTP-metrics server shape is
// reused narrowed to MXF's scope.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mxf-project/mxf/internal/auth"
	"github.com/mxf-project/mxf/internal/bridges"
	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/config"
	"github.com/mxf-project/mxf/internal/convo"
	"github.com/mxf-project/mxf/internal/inference"
	"github.com/mxf-project/mxf/internal/monitor"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/observability"
	"github.com/mxf-project/mxf/internal/orpar"
	"github.com/mxf-project/mxf/internal/prompt"
	"github.com/mxf-project/mxf/internal/providers"
	"github.com/mxf-project/mxf/internal/registry"
	"github.com/mxf-project/mxf/internal/sandbox"
	"github.com/mxf-project/mxf/internal/tasks"
	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/internal/tools/mcpmgr"
	"github.com/mxf-project/mxf/pkg/models"
)

// Server aggregates every MXF component for one process.
type Server struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	Bus      *bus.Bus
	Auth     *auth.Service
	JWT      *auth.JWTService
	Locker   *auth.SessionLocker
	Channels *registry.Channels
	Agents   *registry.Agents
	Sessions *registry.Sessions
	History  *convo.History

	compactionCfg convo.CompactionConfig

	ToolRegistry *tools.Registry
	Dispatcher   *tools.Dispatcher
	MCP          *mcpmgr.Manager

	providers map[string]orpar.Provider

	Inference *inference.Service

	taskStore     *tasks.Store
	taskRoster    *tasks.CapabilityRoster
	tasksMu       sync.Mutex
	taskMgrs      map[string]*tasks.Manager
	taskScheduler *tasks.Scheduler

	SandboxPool *sandbox.Pool
	AuditLog    *sandbox.MemoryAuditLog
	Prompt      *prompt.Builder
	Monitors    *monitor.Registry

	spectators []*bridges.Spectator

	runtimesMu sync.Mutex
	runtimes   map[string]*orpar.AgentRuntime

	grpc *grpcServer
	http *httpServer
}

// NewServer constructs every MXF component from cfg. LLM providers with no
// configured API key are skipped with a logged warning, and notification
// bridges with no bot token are not built, rather than failing startup,
// mirroring the teacher's NewServer.
func NewServer(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*Server, error) {
	eventBus := bus.New(logger)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,

		Bus:      eventBus,
		Auth:     auth.NewService(cfg.Auth.DomainKey),
		JWT:      auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry),
		Locker:   auth.NewSessionLocker(auth.DefaultLockTimeout),
		Channels: registry.NewChannels(),
		Agents:   registry.NewAgents(),
		Sessions: registry.NewSessions(),
		History:  convo.NewHistory(),

		compactionCfg: compactionConfigFromCfg(cfg.Convo),

		ToolRegistry: tools.NewRegistry(),

		taskStore:  tasks.NewStore(),
		taskRoster: tasks.NewCapabilityRoster(),
		taskMgrs:   make(map[string]*tasks.Manager),

		Monitors: nil, // set below once Bus exists

		providers: make(map[string]orpar.Provider),
		runtimes:  make(map[string]*orpar.AgentRuntime),
	}
	s.Monitors = monitor.NewRegistry(eventBus)
	s.MCP = mcpmgr.New(logger)
	s.Dispatcher = tools.NewDispatcher(s.ToolRegistry, mcpDispatchAdapter{s.MCP}, nil)

	s.Inference = inference.NewService(cfg.ORPAR.DefaultModel)
	s.Prompt = prompt.NewBuilder(s.ToolRegistry, logger)

	if err := s.registerMCPServers(context.Background(), cfg.Tools.MCPServers); err != nil {
		logger.Warn(context.Background(), "some configured MCP servers failed to start", "error", err)
	}

	s.buildProviders(cfg.ORPAR.Providers)

	runner := sandbox.NewDockerRunner()
	s.SandboxPool = sandbox.NewPool(sandbox.PoolConfig{
		MaxConcurrent:  cfg.Sandbox.MaxConcurrent,
		QueueSize:      cfg.Sandbox.QueueSize,
		DefaultTimeout: cfg.Sandbox.DefaultTimeout,
		MaxTimeout:     cfg.Sandbox.MaxTimeout,
	}, runner)
	s.AuditLog = sandbox.NewMemoryAuditLog()

	s.buildSpectators(cfg)

	scheduler, err := tasks.NewScheduler(cfg.Tasks.SweepSchedule, cfg.Tasks.StaleAfter, logger.Plain())
	if err != nil {
		return nil, fmt.Errorf("invalid tasks.sweep_schedule %q: %w", cfg.Tasks.SweepSchedule, err)
	}
	s.taskScheduler = scheduler

	return s, nil
}

// mcpDispatchAdapter satisfies tools.ExternalDispatcher over mcpmgr.Manager.
type mcpDispatchAdapter struct{ mgr *mcpmgr.Manager }

func (a mcpDispatchAdapter) Dispatch(ctx context.Context, source models.ToolSource, name string, args json.RawMessage) (string, error) {
	return a.mgr.Dispatch(ctx, source, name, args)
}

func (s *Server) registerMCPServers(ctx context.Context, configured []config.MCPServerConfig) error {
	var firstErr error
	for _, mc := range configured {
		srv := models.ExternalMCPServer{
			ID:         mc.Name,
			Name:       mc.Name,
			Transport:  models.MCPTransportStdio,
			Command:    mc.Command,
			Args:       mc.Args,
			Env:        mc.Env,
			AutoStart:  true,
			Scope:      models.ScopeGlobal,
		}
		if err := s.MCP.Register(srv); err != nil {
			s.logger.Warn(ctx, "failed to register mcp server", "server", mc.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.MCP.Start(ctx, mc.Name); err != nil {
			s.logger.Warn(ctx, "failed to start mcp server", "server", mc.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// buildProviders constructs one orpar.Provider per configured credential.
// A provider whose API key is empty is skipped (degrade gracefully,
// mirroring the teacher's conditional subsystem construction).
func (s *Server) buildProviders(configured map[string]config.ProviderConfig) {
	for name, pc := range configured {
		if pc.APIKey == "" {
			s.logger.Warn(context.Background(), "skipping provider with no api key configured", "provider", name)
			continue
		}
		switch name {
		case "anthropic":
			s.providers[name] = providers.NewAnthropicProvider(pc.APIKey)
		case "openai":
			s.providers[name] = providers.NewOpenAIProvider(pc.APIKey)
		case "bedrock":
			s.providers[name] = providers.NewBedrockProvider()
		case "google":
			s.providers[name] = providers.NewGoogleProvider()
		default:
			s.logger.Warn(context.Background(), "unknown provider configured, skipping", "provider", name)
		}
	}
}

func (s *Server) buildSpectators(cfg *config.Config) {
	if cfg.Bridges.Slack != nil && cfg.Bridges.Slack.BotToken != "" {
		s.addSpectator(cfg.Bridges.Slack.ChannelID, bridges.NewSlackBridge(cfg.Bridges.Slack.BotToken, cfg.Bridges.Slack.ChannelID))
	}
	if cfg.Bridges.Discord != nil && cfg.Bridges.Discord.BotToken != "" {
		bridge, err := bridges.NewDiscordBridge(cfg.Bridges.Discord.BotToken, cfg.Bridges.Discord.ChannelID)
		if err != nil {
			s.logger.Warn(context.Background(), "failed to build discord bridge", "error", err)
		} else {
			s.addSpectator(cfg.Bridges.Discord.ChannelID, bridge)
		}
	}
	if cfg.Bridges.Telegram != nil && cfg.Bridges.Telegram.BotToken != "" {
		bridge, err := bridges.NewTelegramBridgeFromConfig(cfg.Bridges.Telegram.BotToken, cfg.Bridges.Telegram.ChatID)
		if err != nil {
			s.logger.Warn(context.Background(), "failed to build telegram bridge", "error", err)
		} else {
			s.addSpectator("", bridge)
		}
	}
}

func (s *Server) addSpectator(channelID string, bridge bridges.Bridge) {
	m := s.Monitors.Open("spectator:"+channelID, channelID)
	spec := bridges.NewSpectator(m, []bridges.Bridge{bridge}, nil, s.logger)
	s.spectators = append(s.spectators, spec)
}

// Provider returns the configured provider for name, or an error if it
// was never built (missing credentials, unknown name).
func (s *Server) Provider(name string) (orpar.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, mxferrors.New(mxferrors.NotFound, "no provider configured for %q", name)
	}
	return p, nil
}

// TaskManagerFor returns the lazily-constructed task Manager for
// channelID, sharing the server-wide store and capability roster but
// emitting through that channel's own ChannelView.
func (s *Server) TaskManagerFor(channelID string) *tasks.Manager {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if mgr, ok := s.taskMgrs[channelID]; ok {
		return mgr
	}
	view := bus.NewChannelView(s.Bus, "system", channelID)
	mgr := tasks.NewManager(s.taskStore, s.taskRoster, view)
	s.taskMgrs[channelID] = mgr
	s.taskScheduler.Register(channelID, mgr)
	return mgr
}

// RuntimeFor returns the AgentRuntime bound to (agentID, channelID),
// constructing it on first use from the agent's registered configuration
// (spec §3: "at most one AgentRuntime instance exists per (AgentID,
// ChannelID) at any moment").
func (s *Server) RuntimeFor(ctx context.Context, agentID, channelID, sessionID string) (*orpar.AgentRuntime, error) {
	key := agentID + "\x00" + channelID

	s.runtimesMu.Lock()
	defer s.runtimesMu.Unlock()
	if rt, ok := s.runtimes[key]; ok {
		return rt, nil
	}

	agentCfg, ok := s.Agents.Get(agentID, channelID)
	if !ok {
		return nil, mxferrors.New(mxferrors.NotFound, "agent %q is not registered in channel %q", agentID, channelID)
	}

	providerName := agentCfg.LLMAdapterConfig.Provider
	if providerName == "" {
		providerName = "anthropic"
	}
	provider, err := s.Provider(providerName)
	if err != nil {
		return nil, err
	}

	view := bus.NewChannelView(s.Bus, agentID, channelID)
	loopCfg := orpar.DefaultConfig()
	if agentCfg.MaxIterations > 0 {
		loopCfg.MaxIterations = agentCfg.MaxIterations
	} else if s.cfg.ORPAR.MaxIterations > 0 {
		loopCfg.MaxIterations = s.cfg.ORPAR.MaxIterations
	}
	loopCfg.DefaultParams.Model = agentCfg.LLMAdapterConfig.Model

	s.ToolRegistry.RegisterChannel(channelID, codeExecuteDescriptor(), sandbox.NewCodeExecuteHandler(s.SandboxPool, s.AuditLog, agentID, channelID))

	var channelAllowed map[string]bool
	if ch, ok := s.Channels.Get(channelID); ok {
		channelAllowed = ch.AllowedTools
	}

	rt := orpar.NewAgentRuntime(agentID, channelID, sessionID, provider, s.Dispatcher, s.History, s.ToolRegistry, view, loopCfg, s.Inference)
	rt.SetToolAllowlists(channelAllowed, agentCfg.AllowedTools)
	rt.SetCircuitBreakerExempt(agentCfg.CircuitBreakerExemptTools)
	rt.SetCompactor(convo.NewCompactor(s.compactionCfg, s.History, orpar.NewProviderSummarizer(provider, loopCfg.DefaultParams.Model)))
	s.runtimes[key] = rt
	return rt, nil
}

// compactionConfigFromCfg maps the configured history limits onto a
// convo.CompactionConfig: compactionBatch old messages are summarized away
// once the session exceeds maxHistoryMessages, keeping the remainder intact
// (spec §4.3).
func compactionConfigFromCfg(cfg config.ConvoConfig) convo.CompactionConfig {
	keepLastN := cfg.MaxHistoryMessages - cfg.CompactionBatch
	if keepLastN < 1 {
		keepLastN = 1
	}
	return convo.CompactionConfig{
		Enabled:        true,
		MaxMessages:    cfg.MaxHistoryMessages,
		KeepLastN:      keepLastN,
		PreserveSystem: true,
	}
}

// codeExecuteDescriptor is the static ToolDescriptor for the sandboxed
// code_execute builtin (spec §4.8).
func codeExecuteDescriptor() models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "code_execute",
		Description: "Execute JavaScript or TypeScript inside an isolated sandbox and return its output.",
		Category:    "sandbox",
		InputSchema: []byte(`{"type":"object","properties":{"code":{"type":"string"},"language":{"type":"string"}},"required":["code","language"]}`),
		Source:      models.SourceBuiltin,
	}
}

// Close releases every subsystem that owns a background goroutine or
// resource, logging (not aborting) on each individual failure, mirroring
// the teacher's Server.Stop ordered-but-non-fatal teardown.
func (s *Server) Close(ctx context.Context) {
	for _, spec := range s.spectators {
		spec.Stop()
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}
}
