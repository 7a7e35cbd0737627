// Package bus implements the duplex event bus and transport framing (spec
// §4.1): envelope shape, the public-event whitelist, bounded-inbox
// subscriptions with per-topic backpressure policy, and channel-scoped /
// monitor sub-views.
package bus

import (
	"strings"
	"time"
)

// Envelope is the wire-level unit exchanged over the duplex transport.
type Envelope struct {
	Type      string         `json:"type"`
	ChannelID string         `json:"channelId,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Data      any            `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	meta      map[string]any
}

// publicPrefixes is the static whitelist of event-type prefixes clients
// may subscribe to (spec §4.1). Internal-only namespaces (e.g.
// "task.internal.*") are never crossed onto the transport boundary.
var publicPrefixes = []string{
	"message.",
	"task.",
	"memory.create_result",
	"memory.update_result",
	"memory.get_result",
	"memory.delete_result",
	"mcp.tool_call",
	"mcp.tool_result",
	"mcp.tool_error",
	"mcp.tool_registered",
	"controlloop.observation",
	"controlloop.reasoning",
	"controlloop.plan",
	"controlloop.action",
	"controlloop.reflection",
	"agent.connected",
	"agent.disconnected",
	"agent.registered",
	"agent.error",
	"agent.join_channel",
	"agent.leave_channel",
	"channel.agent_joined",
	"channel.agent_left",
	"channel.created",
	"channel.updated",
}

// IsPublic reports whether an event type is on the whitelist and may cross
// the transport boundary. "task.internal.*" is explicitly excluded even
// though it has the "task." prefix.
func IsPublic(eventType string) bool {
	if strings.HasPrefix(eventType, "task.internal.") {
		return false
	}
	for _, prefix := range publicPrefixes {
		if strings.HasSuffix(prefix, ".") {
			if strings.HasPrefix(eventType, prefix) {
				return true
			}
			continue
		}
		if eventType == prefix {
			return true
		}
	}
	return false
}

// BackpressurePolicy selects how a full subscriber inbox is handled.
type BackpressurePolicy int

const (
	// PolicyDropOldest discards the oldest queued event to make room.
	PolicyDropOldest BackpressurePolicy = iota
	// PolicyBlockWithTimeout blocks the emitter up to a deadline, then
	// reports MESSAGE_SEND_FAILED.
	PolicyBlockWithTimeout
)

// policyForTopic implements the per-topic policy table from spec §4.1:
// controlloop.* and memory.get_result drop-oldest; task.* and message.*
// block-with-timeout. Everything else defaults to drop-oldest.
func policyForTopic(topic string) BackpressurePolicy {
	switch {
	case strings.HasPrefix(topic, "controlloop."):
		return PolicyDropOldest
	case topic == "memory.get_result":
		return PolicyDropOldest
	case strings.HasPrefix(topic, "task."):
		return PolicyBlockWithTimeout
	case strings.HasPrefix(topic, "message."):
		return PolicyBlockWithTimeout
	default:
		return PolicyDropOldest
	}
}
