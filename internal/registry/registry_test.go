package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxf-project/mxf/pkg/models"
)

func TestChannelsCreateRejectsDuplicate(t *testing.T) {
	c := NewChannels()
	_, err := c.Create(models.Channel{ChannelID: "ch-1"})
	require.NoError(t, err)

	_, err = c.Create(models.Channel{ChannelID: "ch-1"})
	require.Error(t, err)
}

func TestChannelsAddMemberCreatesOnFirstUse(t *testing.T) {
	c := NewChannels()
	ch := c.AddMember("ch-2", "agent-1")
	assert.True(t, ch.Members["agent-1"])

	stored, ok := c.Get("ch-2")
	require.True(t, ok)
	assert.True(t, stored.Members["agent-1"])
}

func TestChannelsRemoveMember(t *testing.T) {
	c := NewChannels()
	c.AddMember("ch-3", "agent-1")
	c.RemoveMember("ch-3", "agent-1")

	stored, ok := c.Get("ch-3")
	require.True(t, ok)
	assert.False(t, stored.Members["agent-1"])
}

func TestAgentsUpsertScopesByChannel(t *testing.T) {
	a := NewAgents()
	a.Upsert(models.Agent{AgentID: "agent-1", ChannelID: "ch-1", DisplayName: "First"})
	a.Upsert(models.Agent{AgentID: "agent-1", ChannelID: "ch-2", DisplayName: "Second"})

	first, ok := a.Get("agent-1", "ch-1")
	require.True(t, ok)
	assert.Equal(t, "First", first.DisplayName)

	second, ok := a.Get("agent-1", "ch-2")
	require.True(t, ok)
	assert.Equal(t, "Second", second.DisplayName)
}

func TestAgentsSetStatus(t *testing.T) {
	a := NewAgents()
	a.Upsert(models.Agent{AgentID: "agent-1", ChannelID: "ch-1"})
	a.SetStatus("agent-1", "ch-1", models.AgentStatusRunning)

	ag, ok := a.Get("agent-1", "ch-1")
	require.True(t, ok)
	assert.Equal(t, models.AgentStatusRunning, ag.Status)
}

func TestSessionsOpenTouchClose(t *testing.T) {
	s := NewSessions()
	s.Open(models.Session{ID: "sess-1", AgentID: "agent-1"})
	assert.Equal(t, 1, s.Count())

	s.Touch("sess-1")
	sess, ok := s.Get("sess-1")
	require.True(t, ok)
	assert.False(t, sess.LastSeenAt.IsZero())

	s.Close("sess-1")
	assert.Equal(t, 0, s.Count())
	_, ok = s.Get("sess-1")
	assert.False(t, ok)
}
