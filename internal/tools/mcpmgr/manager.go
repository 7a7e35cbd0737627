package mcpmgr

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/internal/observability"
	"github.com/mxf-project/mxf/internal/retry"
	"github.com/mxf-project/mxf/pkg/models"
)

// server tracks one external MCP server's runtime state alongside its
// static configuration, grounded on the teacher's Manager/Client split
// (internal/mcp/manager.go) collapsed into one entry carrying both the
// config and the live transport, plus the restart/keepalive bookkeeping
// the teacher's manager does not do.
type server struct {
	mu            sync.Mutex
	config        models.ExternalMCPServer
	transport     Transport
	restartCount  int
	lastActivity  time.Time
	cancelKeep    context.CancelFunc
	cancelHealth  context.CancelFunc
}

// Manager owns the lifecycle of every configured external MCP server:
// starting, health-checking, restarting on crash with backoff, and
// auto-stopping channel-scoped servers after a configurable idle period.
type Manager struct {
	logger       *observability.Logger
	backoff      retry.Policy
	newTransport func(*models.ExternalMCPServer) Transport

	mu      sync.RWMutex
	servers map[string]*server
}

// New builds an empty Manager using the real stdio/http transports.
func New(logger *observability.Logger) *Manager {
	return &Manager{logger: logger, backoff: retry.DefaultPolicy(), newTransport: NewTransport, servers: make(map[string]*server)}
}

// NewWithTransportFactory builds a Manager using a custom transport
// factory, letting tests substitute a fake Transport instead of spawning
// real processes or HTTP servers.
func NewWithTransportFactory(logger *observability.Logger, factory func(*models.ExternalMCPServer) Transport) *Manager {
	m := New(logger)
	m.newTransport = factory
	return m
}

// Register adds a server definition in the "registered" state without
// starting it.
func (m *Manager) Register(cfg models.ExternalMCPServer) error {
	if err := ValidateServerConfig(&cfg); err != nil {
		return mxferrors.Wrap(mxferrors.ValidationError, err, "invalid MCP server config")
	}
	cfg.State = models.MCPStateRegistered

	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[cfg.ID] = &server{config: cfg}
	return nil
}

// Start transitions a registered server through starting -> ready (or
// failed), and if AutoStart/health-check is configured, begins its health
// loop and channel-scoped inactivity timer.
func (m *Manager) Start(ctx context.Context, serverID string) error {
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return mxferrors.New(mxferrors.NotFound, "mcp server %q not registered", serverID)
	}

	s.mu.Lock()
	s.config.State = models.MCPStateStarting
	cfg := s.config
	s.mu.Unlock()

	transport := m.newTransport(&cfg)
	startCtx := ctx
	if cfg.StartupTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, cfg.StartupTimeout)
		defer cancel()
	}

	if err := transport.Connect(startCtx); err != nil {
		s.mu.Lock()
		s.config.State = models.MCPStateFailed
		s.mu.Unlock()
		if cfg.RestartOnCrash {
			go m.scheduleRestart(serverID)
		}
		return mxferrors.Wrap(mxferrors.ConnectionFailed, err, "failed to start mcp server %q", serverID)
	}

	s.mu.Lock()
	s.transport = transport
	s.config.State = models.MCPStateReady
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if cfg.HealthCheckInterval > 0 {
		healthCtx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancelHealth = cancel
		s.mu.Unlock()
		go m.healthLoop(healthCtx, serverID)
	}
	if cfg.Scope != models.ScopeGlobal && cfg.KeepAliveMinutes > 0 {
		keepCtx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancelKeep = cancel
		s.mu.Unlock()
		go m.keepAliveLoop(keepCtx, serverID)
	}
	return nil
}

// Stop transitions a server to "stopped" and releases its transport and
// background loops.
func (m *Manager) Stop(serverID string) error {
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelHealth != nil {
		s.cancelHealth()
		s.cancelHealth = nil
	}
	if s.cancelKeep != nil {
		s.cancelKeep()
		s.cancelKeep = nil
	}
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	s.config.State = models.MCPStateStopped
	return nil
}

// StopAll stops every registered server, used on process shutdown.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.servers))
	for id := range m.servers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Stop(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// State returns the current lifecycle state of a server.
func (m *Manager) State(serverID string) (models.MCPServerState, bool) {
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.State, true
}

// Dispatch routes a tool call to its owning server's transport, bumping
// the server's activity timestamp so its keepalive timer does not fire.
func (m *Manager) Dispatch(ctx context.Context, source models.ToolSource, name string, args json.RawMessage) (string, error) {
	serverID := externalServerID(source)
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return "", mxferrors.New(mxferrors.NotFound, "mcp server %q not registered", serverID)
	}

	s.mu.Lock()
	transport := s.transport
	state := s.config.State
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if state != models.MCPStateReady || transport == nil {
		return "", mxferrors.New(mxferrors.OperationFailed, "mcp server %q is not ready (state=%s)", serverID, state)
	}

	var params any
	_ = json.Unmarshal(args, &params)
	result, err := transport.Call(ctx, "tools/call", map[string]any{"name": name, "arguments": params})
	if err != nil {
		return "", mxferrors.Wrap(mxferrors.OperationFailed, err, "mcp tool call %q on server %q failed", name, serverID)
	}
	return string(result), nil
}

func externalServerID(source models.ToolSource) string {
	const prefix = "external:"
	s := string(source)
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

func (m *Manager) healthLoop(ctx context.Context, serverID string) {
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	interval := s.config.HealthCheckInterval
	s.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			transport := s.transport
			restartOnCrash := s.config.RestartOnCrash
			s.mu.Unlock()
			if transport == nil {
				continue
			}
			if _, err := transport.Call(ctx, "ping", nil); err != nil {
				if m.logger != nil {
					m.logger.Warn(ctx, "mcp server failed health check", "server", serverID, "error", err)
				}
				s.mu.Lock()
				s.config.State = models.MCPStateFailed
				s.mu.Unlock()
				if restartOnCrash {
					go m.scheduleRestart(serverID)
				}
				return
			}
		}
	}
}

func (m *Manager) keepAliveLoop(ctx context.Context, serverID string) {
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	idleLimit := time.Duration(s.config.KeepAliveMinutes) * time.Minute
	s.mu.Unlock()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle >= idleLimit {
				_ = m.Stop(serverID)
				return
			}
		}
	}
}

// scheduleRestart waits the backoff's computed delay for this server's
// restart attempt count, then retries Start, bailing out once
// MaxRestartAttempts is exhausted (spec §4.4: "restart-on-crash with
// exponential backoff up to maxRestartAttempts").
func (m *Manager) scheduleRestart(serverID string) {
	m.mu.RLock()
	s, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.restartCount++
	attempt := s.restartCount
	maxAttempts := s.config.MaxRestartAttempts
	s.mu.Unlock()

	if maxAttempts > 0 && attempt > maxAttempts {
		if m.logger != nil {
			m.logger.Error(context.Background(), "mcp server exhausted restart attempts", "server", serverID, "attempts", attempt)
		}
		return
	}

	delay := retry.Compute(m.backoff, attempt)
	time.Sleep(delay)
	_ = m.Start(context.Background(), serverID)
}
