package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mxf-project/mxf/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlerEcho(ctx context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestResolvePrefersChannelOverGlobal(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "search"}, handlerEcho)
	r.RegisterChannel("c1", models.ToolDescriptor{Name: "search", Description: "channel variant"}, handlerEcho)

	desc, _, ok := r.Resolve("c1", "search")
	require.True(t, ok)
	assert.Equal(t, "channel variant", desc.Description)

	desc, _, ok = r.Resolve("c2", "search")
	require.True(t, ok)
	assert.Empty(t, desc.Description)
}

func TestResolveNotFound(t *testing.T) {
	r := NewRegistry()
	_, _, ok := r.Resolve("c1", "missing")
	assert.False(t, ok)
}

func TestAvailableFiltersByAllowLists(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "search"}, handlerEcho)
	r.RegisterGlobal(models.ToolDescriptor{Name: "fetch"}, handlerEcho)
	r.RegisterChannel("c1", models.ToolDescriptor{Name: "code_execute"}, handlerEcho)

	channelAllowed := map[string]bool{"search": true, "code_execute": true}
	agentAllowed := map[string]bool{"search": true}

	available := r.Available("c1", channelAllowed, agentAllowed)
	var names []string
	for _, d := range available {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"search"}, names)
}

func TestAvailableUnrestrictedWhenNilMaps(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(models.ToolDescriptor{Name: "search"}, handlerEcho)
	available := r.Available("c1", nil, nil)
	assert.Len(t, available, 1)
}

func TestMatchPatternWildcards(t *testing.T) {
	assert.True(t, MatchPattern("mcp:*", "external:srv1:weather"))
	assert.True(t, MatchPattern("code_.*", "code_execute"))
	assert.False(t, MatchPattern("code_.*", "search"))
	assert.True(t, MatchPattern("search", "search"))
}

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "weather", NormalizeToolName("external:srv1:weather"))
	assert.Equal(t, "search", NormalizeToolName("search"))
}
