// Package config loads, validates, and hot-reloads MXF's server
// configuration, grounded on the teacher's internal/config package.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration document for one mxfd process.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Bus      BusConfig      `yaml:"bus"`
	Convo    ConvoConfig    `yaml:"convo"`
	Tools    ToolsConfig    `yaml:"tools"`
	ORPAR    ORPARConfig    `yaml:"orpar"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Tasks    TasksConfig    `yaml:"tasks"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Bridges  BridgesConfig  `yaml:"bridges"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the process's listening surfaces.
type ServerConfig struct {
	Host        string `yaml:"host"`
	GRPCPort    int    `yaml:"grpc_port"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// AuthConfig configures the two-layer handshake and JWT session-token
// issuance (C2).
type AuthConfig struct {
	// DomainKey, if set, is the shared secret every connecting transport
	// must present before a per-agent credential is even considered. Empty
	// disables the domain-key layer (single-tenant/development mode).
	DomainKey   string        `yaml:"domain_key"`
	JWTSecret   string        `yaml:"jwt_secret"`
	Issuer      string        `yaml:"issuer"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// BusConfig configures event-bus backpressure (C1, spec §5).
type BusConfig struct {
	AdvisoryBufferSize int           `yaml:"advisory_buffer_size"`
	CriticalBufferSize int           `yaml:"critical_buffer_size"`
	CriticalTimeout    time.Duration `yaml:"critical_timeout"`
}

// ConvoConfig configures conversation history compaction (C3).
type ConvoConfig struct {
	MaxHistoryMessages int `yaml:"max_history_messages"`
	CompactionBatch    int `yaml:"compaction_batch"`
}

// ToolsConfig configures the tool registry and MCP manager (C4).
type ToolsConfig struct {
	MCPServers    []MCPServerConfig `yaml:"mcp_servers"`
	DefaultScope  string            `yaml:"default_scope"`
	ReconnectWait time.Duration     `yaml:"reconnect_wait"`
}

// MCPServerConfig is one configured external MCP server.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// ORPARConfig configures the agent runtime loop (C5) and its providers.
type ORPARConfig struct {
	MaxIterations int                       `yaml:"max_iterations"`
	PhaseTimeout  time.Duration             `yaml:"phase_timeout"`
	Providers     map[string]ProviderConfig `yaml:"providers"`
	DefaultModel  string                    `yaml:"default_model"`
}

// ProviderConfig configures one named LLM provider credential set.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SandboxConfig configures the code-execution sandbox (C8).
type SandboxConfig struct {
	Image          string        `yaml:"image"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	QueueSize      int           `yaml:"queue_size"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
}

// TasksConfig configures the periodic stale-task sweep (C7).
type TasksConfig struct {
	// SweepSchedule is a cron expression (the teacher's
	// SecondOptional/Minute/Hour/Dom/Month/Dow/Descriptor grammar, e.g.
	// "@every 1m") driving how often the sweep runs.
	SweepSchedule string `yaml:"sweep_schedule"`
	// StaleAfter is how long a task may sit in assigned or in_progress
	// without an update before the sweep fails it.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// PromptConfig configures the system-prompt builder (C9).
type PromptConfig struct {
	BaseInstructionsPath string   `yaml:"base_instructions_path"`
	Constraints          []string `yaml:"constraints"`
	TimeZone             string   `yaml:"time_zone"`
}

// BridgesConfig configures the channel-monitor spectator bridges (C10).
type BridgesConfig struct {
	Slack    *SlackBridgeConfig    `yaml:"slack"`
	Discord  *DiscordBridgeConfig  `yaml:"discord"`
	Telegram *TelegramBridgeConfig `yaml:"telegram"`
}

// SlackBridgeConfig configures the Slack spectator bridge.
type SlackBridgeConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordBridgeConfig configures the Discord spectator bridge.
type DiscordBridgeConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// TelegramBridgeConfig configures the Telegram spectator bridge.
type TelegramBridgeConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Load reads path (YAML, with $include support and JSON5-formatted
// includes), expands environment variables, applies NEXUS_-style env
// overrides (here MXF_-prefixed), fills defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 50051
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "mxf"
	}
	if cfg.Bus.AdvisoryBufferSize == 0 {
		cfg.Bus.AdvisoryBufferSize = 256
	}
	if cfg.Bus.CriticalBufferSize == 0 {
		cfg.Bus.CriticalBufferSize = 64
	}
	if cfg.Bus.CriticalTimeout == 0 {
		cfg.Bus.CriticalTimeout = 5 * time.Second
	}
	if cfg.Convo.MaxHistoryMessages == 0 {
		cfg.Convo.MaxHistoryMessages = 200
	}
	if cfg.Convo.CompactionBatch == 0 {
		cfg.Convo.CompactionBatch = 50
	}
	if cfg.Tools.DefaultScope == "" {
		cfg.Tools.DefaultScope = "channel"
	}
	if cfg.Tools.ReconnectWait == 0 {
		cfg.Tools.ReconnectWait = 5 * time.Second
	}
	if cfg.ORPAR.MaxIterations == 0 {
		cfg.ORPAR.MaxIterations = 10
	}
	if cfg.ORPAR.PhaseTimeout == 0 {
		cfg.ORPAR.PhaseTimeout = 60 * time.Second
	}
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = "node:20-slim"
	}
	if cfg.Sandbox.MaxConcurrent == 0 {
		cfg.Sandbox.MaxConcurrent = 4
	}
	if cfg.Sandbox.QueueSize == 0 {
		cfg.Sandbox.QueueSize = 16
	}
	if cfg.Sandbox.DefaultTimeout == 0 {
		cfg.Sandbox.DefaultTimeout = 10 * time.Second
	}
	if cfg.Sandbox.MaxTimeout == 0 {
		cfg.Sandbox.MaxTimeout = 60 * time.Second
	}
	if cfg.Tasks.SweepSchedule == "" {
		cfg.Tasks.SweepSchedule = "@every 1m"
	}
	if cfg.Tasks.StaleAfter == 0 {
		cfg.Tasks.StaleAfter = 30 * time.Minute
	}
	if cfg.Prompt.TimeZone == "" {
		cfg.Prompt.TimeZone = "UTC"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "mxfd"
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("MXF_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("MXF_GRPC_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.GRPCPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("MXF_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("MXF_JWT_SECRET")); value != "" {
		cfg.Auth.JWTSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "anthropic", value)
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "openai", value)
	}
}

func setProviderAPIKey(cfg *Config, name, key string) {
	if cfg.ORPAR.Providers == nil {
		cfg.ORPAR.Providers = map[string]ProviderConfig{}
	}
	p := cfg.ORPAR.Providers[name]
	p.APIKey = key
	cfg.ORPAR.Providers[name] = p
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Auth.JWTSecret == "" {
		issues = append(issues, "auth.jwt_secret is required")
	}
	if cfg.Sandbox.MaxConcurrent < 0 {
		issues = append(issues, "sandbox.max_concurrent must be >= 0")
	}
	if cfg.Sandbox.DefaultTimeout > cfg.Sandbox.MaxTimeout {
		issues = append(issues, "sandbox.default_timeout must not exceed sandbox.max_timeout")
	}
	if cfg.ORPAR.MaxIterations <= 0 {
		issues = append(issues, "orpar.max_iterations must be > 0")
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// ValidationError reports every configuration problem found at once,
// rather than failing on the first one, so an operator can fix a broken
// config file in a single pass.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Issues, "; ")
}
