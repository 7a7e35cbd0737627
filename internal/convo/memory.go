package convo

import (
	"context"
	"sync"
	"time"

	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// memoryKey builds the internal storage key for a scoped entry, mirroring
// the hierarchical key idiom from the teacher's
// internal/sessions/hierarchy.go (agent:<agentId>:<key> style prefixes)
// generalized to the four memory scopes instead of channel sessions.
func memoryKey(scope models.MemoryScope, agentID, channelID, key string) string {
	switch scope {
	case models.ScopeAgent:
		return "agent:" + agentID + ":" + key
	case models.ScopeChannel:
		return "channel:" + channelID + ":" + key
	case models.ScopeRelationship:
		return "relationship:" + agentID + ":" + channelID + ":" + key
	default: // ScopeShared
		return "shared:" + key
	}
}

// Memory is the scoped key-value store backing the memory_* tools (spec
// §4.3): agent-private, channel-shared, relationship-pairwise, and
// globally-shared entries, with idempotent delete and key-only listing.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*models.MemoryEntry
}

// NewMemory returns an empty scoped memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*models.MemoryEntry)}
}

// Create stores a new entry, failing with ALREADY_EXISTS if the key is
// already populated within its scope.
func (m *Memory) Create(ctx context.Context, entry models.MemoryEntry) error {
	key := memoryKey(entry.Scope, entry.AgentID, entry.ChannelID, entry.Key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return mxferrors.New(mxferrors.AlreadyExists, "memory key %q already exists in scope %s", entry.Key, entry.Scope)
	}
	stored := entry
	m.entries[key] = &stored
	return nil
}

// Update overwrites an existing entry's value, failing with NOT_FOUND if
// absent.
func (m *Memory) Update(ctx context.Context, entry models.MemoryEntry) error {
	key := memoryKey(entry.Scope, entry.AgentID, entry.ChannelID, entry.Key)

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.entries[key]
	if !ok {
		return mxferrors.New(mxferrors.NotFound, "memory key %q not found in scope %s", entry.Key, entry.Scope)
	}
	existing.Value = entry.Value
	existing.Metadata = entry.Metadata
	existing.ExpiresAt = entry.ExpiresAt
	return nil
}

// Get retrieves an entry, returning NOT_FOUND when absent or expired.
func (m *Memory) Get(ctx context.Context, scope models.MemoryScope, agentID, channelID, key string) (*models.MemoryEntry, error) {
	k := memoryKey(scope, agentID, channelID, key)

	m.mu.RLock()
	entry, ok := m.entries[k]
	m.mu.RUnlock()
	if !ok {
		return nil, mxferrors.New(mxferrors.NotFound, "memory key %q not found in scope %s", key, scope)
	}
	if entry.ExpiresAt != nil && entry.ExpiresAt.Before(time.Now()) {
		m.mu.Lock()
		delete(m.entries, k)
		m.mu.Unlock()
		return nil, mxferrors.New(mxferrors.NotFound, "memory key %q expired", key)
	}
	copied := *entry
	return &copied, nil
}

// Delete removes an entry. Deleting an absent key is a no-op success
// (idempotent, per spec §4.3).
func (m *Memory) Delete(ctx context.Context, scope models.MemoryScope, agentID, channelID, key string) error {
	k := memoryKey(scope, agentID, channelID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, k)
	return nil
}

// ListKeys returns only the keys (never values) stored within a scope,
// matching the spec's key-only list semantics to avoid leaking large
// values through a listing call.
func (m *Memory) ListKeys(ctx context.Context, scope models.MemoryScope, agentID, channelID string) []string {
	prefix := memoryKey(scope, agentID, channelID, "")

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k, entry := range m.entries {
		if len(k) < len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		if entry.ExpiresAt != nil && entry.ExpiresAt.Before(time.Now()) {
			continue
		}
		keys = append(keys, entry.Key)
	}
	return keys
}
