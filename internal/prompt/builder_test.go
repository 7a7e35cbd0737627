package prompt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxf-project/mxf/internal/tools"
	"github.com/mxf-project/mxf/pkg/models"
)

func newTestRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "messaging_send", Description: "Send a message to another agent"}, nil)
	r.RegisterGlobal(models.ToolDescriptor{Name: "code_execute", Description: "Execute code in the sandbox"}, nil)
	return r
}

func TestBuildAssemblesAllSections(t *testing.T) {
	b := NewBuilder(newTestRegistry(), nil)
	req := BuildRequest{
		BaseInstructions: "Be helpful and concise.",
		Agent: models.Agent{
			AgentID:      "agent-1",
			DisplayName:  "Scout",
			Capabilities: []string{"research"},
		},
		Channel: models.Channel{
			ChannelID:   "chan-1",
			Name:        "ops",
			Description: "Operations channel.",
		},
		Constraints: []string{"Never exfiltrate secrets."},
		TokenContext: TokenContext{
			Now:            time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
			AgentID:        "agent-1",
			ChannelID:      "chan-1",
			ChannelName:    "ops",
			ActiveAgentIDs: []string{"agent-1"},
		},
	}

	out := b.Build(context.Background(), req)
	assert.Contains(t, out, "Be helpful and concise.")
	assert.Contains(t, out, "You are Scout (agent id agent-1).")
	assert.Contains(t, out, "Channel: ops (chan-1).")
	assert.Contains(t, out, "messaging_send")
	assert.Contains(t, out, "code_execute")
	assert.Contains(t, out, "Never exfiltrate secrets.")
	assert.NotContains(t, out, "{{")
}

func TestBuildFiltersToolDocsByChannelAllowlist(t *testing.T) {
	b := NewBuilder(newTestRegistry(), nil)
	req := BuildRequest{
		Channel:        models.Channel{ChannelID: "chan-1", Name: "ops"},
		ChannelAllowed: map[string]bool{"messaging_send": true},
	}
	out := b.Build(context.Background(), req)
	assert.Contains(t, out, "messaging_send")
	assert.NotContains(t, out, "code_execute")
}

func TestBuildFiltersToolDocsByAgentAllowlist(t *testing.T) {
	b := NewBuilder(newTestRegistry(), nil)
	req := BuildRequest{
		Channel: models.Channel{ChannelID: "chan-1", Name: "ops"},
		Agent:   models.Agent{AllowedTools: map[string]bool{"code_execute": true}},
	}
	out := b.Build(context.Background(), req)
	assert.Contains(t, out, "code_execute")
	assert.NotContains(t, out, "messaging_send")
}

func TestBuildWithNoToolsAvailable(t *testing.T) {
	b := NewBuilder(newTestRegistry(), nil)
	req := BuildRequest{
		Channel:        models.Channel{ChannelID: "chan-1", Name: "ops"},
		ChannelAllowed: map[string]bool{},
	}
	out := b.Build(context.Background(), req)
	assert.Contains(t, out, "No tools are available in this channel.")
}

func TestBuildLeavesNoUnresolvedKnownTokens(t *testing.T) {
	b := NewBuilder(newTestRegistry(), nil)
	req := BuildRequest{
		BaseInstructions: "Current phase: {{CURRENT_ORPAR_PHASE}}.",
		TokenContext:     TokenContext{ORPARPhase: "reasoning"},
	}
	out := b.Build(context.Background(), req)
	require.Contains(t, out, "Current phase: reasoning.")
}
