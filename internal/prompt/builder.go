package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/mxf-project/mxf/internal/observability"
	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/pkg/models"
)

// Section is one labeled layer of the assembled prompt, grounded on the
// teacher's PromptSection (internal/gateway/system_prompt.go) generalized
// from ad hoc workspace sections into the full layered-fragment model
// spec §4.9 names: base instructions, tool documentation, channel
// context, agent identity/config, constraints.
type Section struct {
	Label   string
	Content string
}

// BuildRequest carries everything the builder needs to assemble one
// agent's system prompt for one request.
type BuildRequest struct {
	BaseInstructions string
	Agent            models.Agent
	Channel          models.Channel
	ChannelAllowed   map[string]bool // nil = unrestricted; from Channel.AllowedTools
	Constraints      []string
	TokenContext     TokenContext
}

// Builder assembles and template-resolves system prompts, grounded on
// the teacher's buildSystemPrompt (internal/gateway/system_prompt.go)
// narrowed from its experiment/heartbeat/memory-flush sections to the
// spec's five named layers, plus the teacher's tool-documentation
// filtering by the same channel-then-agent allowlist order as C4.
type Builder struct {
	registry *tools.Registry
	logger   *observability.Logger
}

// NewBuilder returns a Builder that documents tools visible through
// registry and logs unrecognized template tokens through logger (may be
// nil to suppress logging).
func NewBuilder(registry *tools.Registry, logger *observability.Logger) *Builder {
	return &Builder{registry: registry, logger: logger}
}

// Build assembles req's layered sections, joins them, and resolves every
// recognized template token against req.TokenContext. Template
// replacement happens last and on every call, never at a cached stage
// (spec §4.9).
func (b *Builder) Build(ctx context.Context, req BuildRequest) string {
	var sections []Section

	if base := strings.TrimSpace(req.BaseInstructions); base != "" {
		sections = append(sections, Section{Label: "Instructions", Content: base})
	}

	if identity := b.identitySection(req.Agent); identity != "" {
		sections = append(sections, Section{Label: "Identity", Content: identity})
	}

	if channelCtx := b.channelSection(req.Channel); channelCtx != "" {
		sections = append(sections, Section{Label: "Channel", Content: channelCtx})
	}

	if toolDocs := b.toolSection(req.Channel.ChannelID, req.ChannelAllowed, req.Agent.AllowedTools); toolDocs != "" {
		sections = append(sections, Section{Label: "Tools", Content: toolDocs})
	}

	if constraints := strings.TrimSpace(strings.Join(req.Constraints, "\n")); constraints != "" {
		sections = append(sections, Section{Label: "Constraints", Content: constraints})
	}

	var lines []string
	for _, s := range sections {
		lines = append(lines, fmt.Sprintf("## %s\n%s", s.Label, s.Content))
	}
	assembled := strings.TrimSpace(strings.Join(lines, "\n\n"))

	return ReplaceTokens(ctx, b.logger, assembled, req.TokenContext.Resolve())
}

func (b *Builder) identitySection(agent models.Agent) string {
	if agent.AgentID == "" && agent.DisplayName == "" && len(agent.Capabilities) == 0 {
		return ""
	}
	var lines []string
	if agent.DisplayName != "" {
		lines = append(lines, fmt.Sprintf("You are %s (agent id {{AGENT_ID}}).", agent.DisplayName))
	} else {
		lines = append(lines, "You are agent {{AGENT_ID}}.")
	}
	if len(agent.Capabilities) > 0 {
		lines = append(lines, fmt.Sprintf("Capabilities: %s.", strings.Join(agent.Capabilities, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) channelSection(ch models.Channel) string {
	if ch.ChannelID == "" {
		return ""
	}
	lines := []string{fmt.Sprintf("Channel: {{CHANNEL_NAME}} ({{CHANNEL_ID}}).")}
	if ch.Description != "" {
		lines = append(lines, ch.Description)
	}
	lines = append(lines, "Active agents ({{ACTIVE_AGENTS_COUNT}}): {{ACTIVE_AGENTS_LIST}}.")
	lines = append(lines, "Current time: {{DATE_TIME}} {{TIME_ZONE}}.")
	return strings.Join(lines, "\n")
}

// toolSection documents only the tools callable in this channel for this
// agent, filtered by the same channel-then-agent allowlist resolution
// C4 uses for dispatch (spec §4.9: "filtered by the same resolution as
// §4.4 so only callable tools are documented").
func (b *Builder) toolSection(channelID string, channelAllowed, agentAllowed map[string]bool) string {
	if b.registry == nil {
		return ""
	}
	descs := b.registry.Available(channelID, channelAllowed, agentAllowed)
	if len(descs) == 0 {
		return "No tools are available in this channel."
	}
	var lines []string
	for _, d := range descs {
		if d.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", d.Name, d.Description))
		} else {
			lines = append(lines, fmt.Sprintf("- %s", d.Name))
		}
	}
	return strings.Join(lines, "\n")
}
