// Package tools implements the tool registry and dispatch pipeline (spec
// §4.4): ToolDescriptor resolution (channel before global, filtered by
// channel allowlist then agent allowlist), JSON-schema validated
// dispatch, and provider tool-call format conversion.
package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/mxf-project/mxf/pkg/models"
)

// Handler executes a builtin tool given validated arguments.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Registry holds ToolDescriptors plus builtin Handlers, scoped globally or
// per channel. Grounded on the teacher's ToolRegistry
// (internal/agent/tool_registry.go) generalized from a single flat
// name->Tool map into the spec's channel-then-global resolution order.
type Registry struct {
	mu        sync.RWMutex
	global    map[string]*entry
	byChannel map[string]map[string]*entry
}

type entry struct {
	descriptor models.ToolDescriptor
	handler    Handler // nil for external MCP tools, routed via mcpmgr instead
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		global:    make(map[string]*entry),
		byChannel: make(map[string]map[string]*entry),
	}
}

// RegisterGlobal adds a builtin tool available to every channel.
func (r *Registry) RegisterGlobal(desc models.ToolDescriptor, h Handler) {
	desc.Scope = models.ScopeGlobal
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global[desc.Name] = &entry{descriptor: desc, handler: h}
}

// RegisterChannel adds a tool scoped to one channel, shadowing any
// global tool of the same name within that channel.
func (r *Registry) RegisterChannel(channelID string, desc models.ToolDescriptor, h Handler) {
	desc.Scope = models.ChannelScope(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byChannel[channelID]
	if !ok {
		m = make(map[string]*entry)
		r.byChannel[channelID] = m
	}
	m[desc.Name] = &entry{descriptor: desc, handler: h}
}

// Unregister removes a tool (channel-scoped if channelID is non-empty).
func (r *Registry) Unregister(channelID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if channelID == "" {
		delete(r.global, name)
		return
	}
	if m, ok := r.byChannel[channelID]; ok {
		delete(m, name)
	}
}

// Resolve finds a tool by name, preferring a channel-scoped registration
// over a global one (spec §4.4: "channel-scoped resolved before global").
func (r *Registry) Resolve(channelID, name string) (*models.ToolDescriptor, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if channelID != "" {
		if m, ok := r.byChannel[channelID]; ok {
			if e, ok := m[name]; ok {
				d := e.descriptor
				return &d, e.handler, true
			}
		}
	}
	if e, ok := r.global[name]; ok {
		d := e.descriptor
		return &d, e.handler, true
	}
	return nil, nil, false
}

// Available lists every tool visible within channelID (channel-scoped
// union global, channel-scoped taking precedence on name collision),
// filtered by channelAllowed then agentAllowed (nil maps mean
// unrestricted).
func (r *Registry) Available(channelID string, channelAllowed, agentAllowed map[string]bool) []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []models.ToolDescriptor

	add := func(e *entry) {
		if seen[e.descriptor.Name] {
			return
		}
		if channelAllowed != nil && !channelAllowed[e.descriptor.Name] {
			return
		}
		if agentAllowed != nil && !agentAllowed[e.descriptor.Name] {
			return
		}
		seen[e.descriptor.Name] = true
		out = append(out, e.descriptor)
	}

	if m, ok := r.byChannel[channelID]; ok {
		for _, e := range m {
			add(e)
		}
	}
	for _, e := range r.global {
		add(e)
	}
	return out
}

// NormalizeToolName strips an "mcp:" or "external:<server>:" style prefix
// down to its bare form for pattern-matching, mirroring the teacher's
// normalizeToolName/policy.NormalizeTool helpers.
func NormalizeToolName(name string) string {
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// MatchPattern reports whether toolName matches pattern, supporting an
// exact match, a "prefix.*" wildcard, or the literal "mcp:*" wildcard
// matching any externally-sourced tool. Grounded on the teacher's
// matchToolPattern (internal/agent/tool_registry.go).
func MatchPattern(pattern, toolName string) bool {
	if pattern == "" || toolName == "" {
		return false
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(toolName, "external:") || strings.HasPrefix(toolName, "mcp:")
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(toolName, strings.TrimSuffix(pattern, ".*"))
	}
	return pattern == toolName
}
