package orpar

import (
	"context"

	"github.com/mxf-project/mxf/internal/bus"
	"github.com/mxf-project/mxf/internal/convo"
	"github.com/mxf-project/mxf/internal/inference"
	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/pkg/models"
)

// AgentRuntime binds one (AgentID, ChannelID) pair to its Loop, tool
// registry view, and session, grounded on the teacher's Runtime
// (internal/agent/runtime.go) narrowed to the spec's synchronous
// Process call instead of the teacher's streamed-chunk channel, since
// C5 hands its Result back to the channel dispatcher rather than to an
// interactive client.
type AgentRuntime struct {
	AgentID   string
	ChannelID string
	SessionID string

	loop      *Loop
	registry  *tools.Registry
	compactor *convo.Compactor

	channelAllowed map[string]bool
	agentAllowed   map[string]bool
}

// NewAgentRuntime builds a runtime for one agent bound to one channel.
// infer may be nil, in which case the loop always falls back to
// cfg.DefaultParams instead of resolving through C6.
func NewAgentRuntime(agentID, channelID, sessionID string, provider Provider, dispatcher *tools.Dispatcher, history *convo.History, registry *tools.Registry, view *bus.ChannelView, cfg Config, infer *inference.Service) *AgentRuntime {
	return &AgentRuntime{
		AgentID:   agentID,
		ChannelID: channelID,
		SessionID: sessionID,
		loop:      NewLoop(provider, dispatcher, history, view, cfg, agentID, infer),
		registry:  registry,
	}
}

// SetCompactor attaches the context-window compactor this runtime should
// run after each turn. A nil compactor disables post-turn compaction.
func (r *AgentRuntime) SetCompactor(c *convo.Compactor) {
	r.compactor = c
}

// SetToolAllowlists restricts which tools this agent may see in its
// catalog (spec §4.4 resolution: channel allowlist, then agent
// allowlist). A nil map means no restriction at that level.
func (r *AgentRuntime) SetToolAllowlists(channelAllowed, agentAllowed map[string]bool) {
	r.channelAllowed = channelAllowed
	r.agentAllowed = agentAllowed
}

// SetCircuitBreakerExempt restricts which tool names never count toward
// this agent's loop breaker (models.Agent.CircuitBreakerExemptTools).
func (r *AgentRuntime) SetCircuitBreakerExempt(exempt map[string]bool) {
	r.loop.SetCircuitBreakerExempt(exempt)
}

// Process drives one ORPAR turn for an inbound message and returns the
// final assistant result.
func (r *AgentRuntime) Process(ctx context.Context, inbound models.ConversationMessage) (Result, error) {
	catalog := r.registry.Available(r.ChannelID, r.channelAllowed, r.agentAllowed)
	result, err := r.loop.Run(ctx, r.SessionID, r.ChannelID, inbound, catalog)
	if err != nil {
		return result, err
	}

	if r.compactor != nil {
		// Compaction failure never fails the turn; the next turn simply
		// retries against the still-uncompacted history.
		_, _ = r.compactor.MaybeCompact(ctx, r.SessionID)
	}
	return result, nil
}
