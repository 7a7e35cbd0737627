// Package models defines the shared data entities exchanged between MXF
// components: sessions, channels, agents, conversation messages, memory
// entries, tool descriptors, external MCP servers, tasks, inference
// overrides, and code-execution audit records.
package models

import (
	"encoding/json"
	"time"
)

// Role is the author type of a ConversationMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Session is a connected transport handle produced by a successful
// two-layer authentication (domain key + principal).
type Session struct {
	ID                 string    `json:"id"`
	UserIdentity       string    `json:"user_identity"`
	DomainAuth         bool      `json:"domain_auth"`
	ConnectedAt        time.Time `json:"connected_at"`
	LastSeenAt         time.Time `json:"last_seen_at"`
	SubscribedChannels []string  `json:"subscribed_channels,omitempty"`

	// AgentID/ChannelID are set when this session is an agent-bound
	// session (the agent authenticated directly with keyId/secretKey).
	AgentID   string `json:"agent_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// Channel groups member agents, tool restrictions, and MCP servers.
type Channel struct {
	ChannelID        string          `json:"channel_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Members          map[string]bool `json:"members"`
	AllowedTools     map[string]bool `json:"allowed_tools,omitempty"`
	SystemLlmEnabled bool            `json:"system_llm_enabled"`
	MCPServerIDs     map[string]bool `json:"mcp_server_ids,omitempty"`
	CreatedBy        string          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// AgentStatus tracks the coarse liveness of an agent runtime, surfaced for
// dashboards and health probes.
type AgentStatus string

const (
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusRunning AgentStatus = "running"
	AgentStatusError   AgentStatus = "error"
)

// Agent is the durable configuration of an autonomous runtime bound to a
// channel. At most one AgentRuntime instance exists per (AgentID, ChannelID)
// at any moment.
type Agent struct {
	AgentID                   string          `json:"agent_id"`
	ChannelID                 string          `json:"channel_id"`
	KeyID                     string          `json:"key_id"`
	DisplayName               string          `json:"display_name"`
	Capabilities              []string        `json:"capabilities,omitempty"`
	AllowedTools              map[string]bool `json:"allowed_tools,omitempty"`
	CircuitBreakerExemptTools map[string]bool `json:"circuit_breaker_exempt_tools,omitempty"`
	LLMAdapterConfig          AdapterConfig   `json:"llm_adapter_config"`
	MaxIterations             int             `json:"max_iterations"`
	MXP                       map[string]any  `json:"mxp,omitempty"`
	Status                    AgentStatus     `json:"status,omitempty"`
}

// AdapterConfig selects the LLM adapter and model an agent uses.
type AdapterConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ToolCall is an assistant-issued request to execute a tool, in the
// canonical shape produced by the C4 format-conversion layer.
type ToolCall struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
}

// ToolMessageContent carries the outcome of one tool invocation.
type ToolMessageContent struct {
	ToolCallID  string `json:"tool_call_id"`
	Content     string `json:"content"`
	IsToolResult bool  `json:"is_tool_result"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// ConversationMessage is one entry of a ConversationHistory.
type ConversationMessage struct {
	ID               string               `json:"id"`
	Role             Role                 `json:"role"`
	Content          string               `json:"content"`
	NormalizedContent string              `json:"-"`
	ToolCalls        []ToolCall           `json:"tool_calls,omitempty"`
	ToolResult       *ToolMessageContent  `json:"tool_result,omitempty"`
	ContextSummary   bool                 `json:"context_summary,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	Metadata         map[string]any       `json:"metadata,omitempty"`
}

// IsToolResult reports whether this message is (or carries) a tool result,
// per the dedup invariant in spec §3: tool messages are never deduplicated.
func (m ConversationMessage) IsToolResult() bool {
	if m.Role == RoleTool {
		return true
	}
	return m.ToolResult != nil && m.ToolResult.IsToolResult
}

// MemoryScope classifies the visibility/ownership of a MemoryEntry.
type MemoryScope string

const (
	ScopeAgent        MemoryScope = "agent"
	ScopeChannel      MemoryScope = "channel"
	ScopeShared       MemoryScope = "shared"
	ScopeRelationship MemoryScope = "relationship"
)

// MemoryEntry is one key-value record in scoped memory.
type MemoryEntry struct {
	Scope     MemoryScope    `json:"scope"`
	Key       string         `json:"key"`
	Value     any            `json:"value"`
	Type      string         `json:"type,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// ToolSource distinguishes builtin tools from externally-hosted MCP tools.
type ToolSource string

const (
	SourceBuiltin ToolSource = "builtin"
)

// ExternalSource formats the "external:<serverId>" source tag.
func ExternalSource(serverID string) ToolSource {
	return ToolSource("external:" + serverID)
}

// ToolScope distinguishes tools registered globally from tools scoped to
// one channel.
type ToolScope string

const ScopeGlobal ToolScope = "global"

// ChannelScope formats the "channel:<id>" scope tag.
func ChannelScope(channelID string) ToolScope {
	return ToolScope("channel:" + channelID)
}

// ToolDescriptor is one entry in the tool registry.
type ToolDescriptor struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Category     string          `json:"category,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Source       ToolSource      `json:"source"`
	Scope        ToolScope       `json:"scope"`
}

// MCPTransportType is the wire transport an external MCP server speaks.
type MCPTransportType string

const (
	MCPTransportStdio MCPTransportType = "stdio"
	MCPTransportHTTP  MCPTransportType = "http"
)

// MCPServerState is the lifecycle state of an ExternalMCPServer.
type MCPServerState string

const (
	MCPStateRegistered MCPServerState = "registered"
	MCPStateStarting   MCPServerState = "starting"
	MCPStateReady      MCPServerState = "ready"
	MCPStateFailed     MCPServerState = "failed"
	MCPStateStopped    MCPServerState = "stopped"
)

// ExternalMCPServer describes an out-of-process MCP tool provider, global
// or scoped to one channel.
type ExternalMCPServer struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Transport           MCPTransportType  `json:"transport"`
	Command             string            `json:"command,omitempty"`
	Args                []string          `json:"args,omitempty"`
	URL                 string            `json:"url,omitempty"`
	Env                 map[string]string `json:"env,omitempty"`
	AutoStart           bool              `json:"auto_start"`
	RestartOnCrash      bool              `json:"restart_on_crash"`
	MaxRestartAttempts  int               `json:"max_restart_attempts"`
	HealthCheckInterval time.Duration     `json:"health_check_interval"`
	StartupTimeout      time.Duration     `json:"startup_timeout"`
	Scope               ToolScope         `json:"scope"`
	KeepAliveMinutes    int               `json:"keep_alive_minutes,omitempty"`
	State               MCPServerState    `json:"state"`
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is one unit of agent work tracked through assignment and
// completion.
type Task struct {
	TaskID          string     `json:"task_id"`
	ChannelID       string     `json:"channel_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        int        `json:"priority"`
	Status          TaskStatus `json:"status"`
	AssigneeAgentID string     `json:"assignee_agent_id,omitempty"`
	Progress        int        `json:"progress"`
	Result          string     `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	// RequiredCapability drives intelligent/round-robin assignment.
	RequiredCapability string `json:"required_capability,omitempty"`
	AssignerID         string `json:"assigner_id,omitempty"`
}

// OverrideScope is the lifetime class of an InferenceOverride.
type OverrideScope string

const (
	ScopeNextCall     OverrideScope = "next_call"
	ScopeCurrentPhase OverrideScope = "current_phase"
	ScopeTask         OverrideScope = "task"
	ScopeSession      OverrideScope = "session"
)

// OverrideStatus is whether an override is still in force.
type OverrideStatus string

const (
	OverrideActive  OverrideStatus = "active"
	OverrideExpired OverrideStatus = "expired"
)

// InferenceParams is the set of fields an override or profile may set.
type InferenceParams struct {
	Model            string  `json:"model,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	ReasoningTokens  int     `json:"reasoning_tokens,omitempty"`
	MaxOutputTokens  int     `json:"max_output_tokens,omitempty"`
}

// InferenceOverride is an agent-requested parameter override with a
// precedence scope and expiry.
type InferenceOverride struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	Phase     string         `json:"phase,omitempty"`
	Scope     OverrideScope  `json:"scope"`
	Params    InferenceParams `json:"params"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Status    OverrideStatus `json:"status"`
}

// ResourceUsage reports sandbox consumption for one code execution.
type ResourceUsage struct {
	MemoryBytes int64 `json:"memory"`
	Timeout     bool  `json:"timeout"`
}

// CodeExecutionRecord is an immutable audit entry for one code_execute call.
type CodeExecutionRecord struct {
	AgentID       string        `json:"agent_id"`
	ChannelID     string        `json:"channel_id"`
	CodeHash      string        `json:"code_hash"`
	Language      string        `json:"language"`
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"execution_time"`
	ResourceUsage ResourceUsage `json:"resource_usage"`
	Error         string        `json:"error,omitempty"`
	ExecutedAt    time.Time     `json:"executed_at"`
}
