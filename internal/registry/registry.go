// Package registry holds the in-memory tables of Channels, Agents, and
// Sessions a single mxfd process serves, grounded on the teacher's
// mutex-guarded map-of-records pattern (internal/multiagent/subagent_registry.go,
// also reused by internal/tasks.Store and internal/tasks.CapabilityRoster
// in this module) rather than the teacher's Postgres-backed channel/agent
// stores, since MXF runs single-node with no persistence requirement named
// in spec §3/§6.
package registry

import (
	"sync"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// Channels is the in-memory Channel table.
type Channels struct {
	mu   sync.RWMutex
	byID map[string]*models.Channel
}

// NewChannels returns an empty channel table.
func NewChannels() *Channels {
	return &Channels{byID: make(map[string]*models.Channel)}
}

// Create registers a new channel, rejecting a duplicate ID.
func (c *Channels) Create(ch models.Channel) (models.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[ch.ChannelID]; exists {
		return models.Channel{}, mxferrors.New(mxferrors.AlreadyExists, "channel %q already exists", ch.ChannelID)
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	if ch.Members == nil {
		ch.Members = make(map[string]bool)
	}
	stored := ch
	c.byID[ch.ChannelID] = &stored
	return stored, nil
}

// Get returns channelID's record.
func (c *Channels) Get(channelID string) (models.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byID[channelID]
	if !ok {
		return models.Channel{}, false
	}
	return *ch, true
}

// AddMember marks agentID as a member of channelID, creating the channel
// on first use (spec §4.2: connecting to an unknown channel joins it).
func (c *Channels) AddMember(channelID, agentID string) models.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.byID[channelID]
	if !ok {
		ch = &models.Channel{ChannelID: channelID, Members: make(map[string]bool), CreatedAt: time.Now()}
		c.byID[channelID] = ch
	}
	if ch.Members == nil {
		ch.Members = make(map[string]bool)
	}
	ch.Members[agentID] = true
	return *ch
}

// RemoveMember clears agentID's membership in channelID.
func (c *Channels) RemoveMember(channelID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.byID[channelID]; ok {
		delete(ch.Members, agentID)
	}
}

// Agents is the in-memory Agent table, keyed by (AgentID, ChannelID) since
// at most one Agent configuration exists per that pair (spec §3).
type Agents struct {
	mu   sync.RWMutex
	byID map[string]*models.Agent
}

func agentKey(agentID, channelID string) string { return agentID + "\x00" + channelID }

// NewAgents returns an empty agent table.
func NewAgents() *Agents {
	return &Agents{byID: make(map[string]*models.Agent)}
}

// Upsert inserts or replaces the agent's configuration.
func (a *Agents) Upsert(agent models.Agent) models.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := agent
	a.byID[agentKey(agent.AgentID, agent.ChannelID)] = &stored
	return stored
}

// Get returns the agent configuration bound to (agentID, channelID).
func (a *Agents) Get(agentID, channelID string) (models.Agent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ag, ok := a.byID[agentKey(agentID, channelID)]
	if !ok {
		return models.Agent{}, false
	}
	return *ag, true
}

// SetStatus updates an agent's coarse liveness status.
func (a *Agents) SetStatus(agentID, channelID string, status models.AgentStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ag, ok := a.byID[agentKey(agentID, channelID)]; ok {
		ag.Status = status
	}
}

// Sessions is the in-memory Session table, one entry per connected
// transport.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*models.Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*models.Session)}
}

// Open records a newly authenticated session.
func (s *Sessions) Open(session models.Session) models.Session {
	now := time.Now()
	if session.ConnectedAt.IsZero() {
		session.ConnectedAt = now
	}
	session.LastSeenAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := session
	s.byID[session.ID] = &stored
	return stored
}

// Touch refreshes a session's LastSeenAt, used by the transport's ping
// pump to track liveness for idle bookkeeping.
func (s *Sessions) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[id]; ok {
		sess.LastSeenAt = time.Now()
	}
}

// Close removes a session on disconnect.
func (s *Sessions) Close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Get returns session id's record.
func (s *Sessions) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	if !ok {
		return models.Session{}, false
	}
	return *sess, true
}

// Count returns the number of currently open sessions.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
