// Package convo implements the conversation/memory manager (spec §4.3):
// append-only history with the tool-call pairing invariant, context-window
// compaction, and scoped key-value memory.
package convo

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mxf-project/mxf/internal/mxferrors"
	"github.com/mxf-project/mxf/pkg/models"
)

// DefaultDedupWindow is N from the dedup invariant (spec §4.3 Append step
// 2): how many trailing messages Append searches for the last non-tool
// message before comparing it against an incoming one.
const DefaultDedupWindow = 1

// History is the append-only, per-session conversation log. Appends are
// serialized per session; tool messages are never deduplicated, matching
// the dedup invariant (spec §3): only a non-tool message whose {role,
// normalizedContent} matches the last non-tool message within DedupWindow
// is dropped.
type History struct {
	mu          sync.Mutex
	sessions    map[string][]models.ConversationMessage
	DedupWindow int
}

// NewHistory returns an empty history store with the spec default dedup
// window.
func NewHistory() *History {
	return &History{sessions: make(map[string][]models.ConversationMessage), DedupWindow: DefaultDedupWindow}
}

// normalizeContent computes the normalizedContent the dedup invariant
// compares on: whitespace-collapsed and case-folded, so cosmetic
// differences (re-wrapped lines, a trailing space) don't defeat dedup
// (spec §9 Open Question: exact similarity semantics are
// implementation-defined; see DESIGN.md).
func normalizeContent(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}

// isToolMessage reports whether msg is exempt from dedup: tool-role
// messages and any message explicitly flagged as a tool result are never
// deduplicated, even when content is identical across calls (spec §3,
// §4.3 step 1).
func isToolMessage(msg models.ConversationMessage) bool {
	if msg.Role == models.RoleTool {
		return true
	}
	if msg.ToolResult != nil && msg.ToolResult.IsToolResult {
		return true
	}
	if flag, ok := msg.Metadata["isToolResult"]; ok {
		if b, ok := flag.(bool); ok && b {
			return true
		}
	}
	return false
}

// Append adds msg to sessionID's history, assigning an ID and timestamp if
// unset, enforcing the dedup invariant first (spec §4.3 Append steps 1-2):
// tool messages append unconditionally; any other message matching the
// last non-tool message's {role, normalizedContent} within DedupWindow is
// dropped and that earlier message is returned instead. Returns the
// stored (or matched) message.
func (h *History) Append(ctx context.Context, sessionID string, msg models.ConversationMessage) models.ConversationMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.NormalizedContent == "" {
		msg.NormalizedContent = normalizeContent(msg.Content)
	}

	if !isToolMessage(msg) {
		if dup, ok := h.findDuplicateLocked(sessionID, msg); ok {
			return dup
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	h.sessions[sessionID] = append(h.sessions[sessionID], msg)
	return msg
}

// findDuplicateLocked walks back from the end of sessionID's history,
// skipping tool messages, and compares msg against the first non-tool
// message it finds within the last DedupWindow messages. Must be called
// with h.mu held.
func (h *History) findDuplicateLocked(sessionID string, msg models.ConversationMessage) (models.ConversationMessage, bool) {
	window := h.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	existing := h.sessions[sessionID]
	start := len(existing) - window
	if start < 0 {
		start = 0
	}
	for i := len(existing) - 1; i >= start; i-- {
		candidate := existing[i]
		if isToolMessage(candidate) {
			continue
		}
		if candidate.Role == msg.Role && candidate.NormalizedContent == msg.NormalizedContent {
			return candidate, true
		}
		return models.ConversationMessage{}, false
	}
	return models.ConversationMessage{}, false
}

// Messages returns a copy of sessionID's full message history in order.
func (h *History) Messages(sessionID string) []models.ConversationMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	src := h.sessions[sessionID]
	out := make([]models.ConversationMessage, len(src))
	copy(out, src)
	return out
}

// replace atomically swaps sessionID's history, used by compaction.
func (h *History) replace(sessionID string, msgs []models.ConversationMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = msgs
}

// PendingToolCalls returns every ToolCallID from the trailing assistant
// message that has not yet been answered by a paired tool message,
// walking backward from the end of history. An empty result means the
// history is balanced and a new inference may proceed.
func PendingToolCalls(msgs []models.ConversationMessage) []models.ToolCall {
	// Find the last assistant message that issued tool calls.
	lastCallIdx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant && len(msgs[i].ToolCalls) > 0 {
			lastCallIdx = i
			break
		}
		if msgs[i].Role == models.RoleAssistant {
			// A later assistant message with no tool calls means the
			// conversation already moved past any pending pairing.
			return nil
		}
	}
	if lastCallIdx == -1 {
		return nil
	}

	answered := make(map[string]bool)
	for _, m := range msgs[lastCallIdx+1:] {
		if m.ToolResult != nil {
			answered[m.ToolResult.ToolCallID] = true
		}
	}

	var pending []models.ToolCall
	for _, tc := range msgs[lastCallIdx].ToolCalls {
		if !answered[tc.ToolCallID] {
			pending = append(pending, tc)
		}
	}
	return pending
}

// EnforcePairing synthesizes a failed tool-result message for every tool
// call left unanswered at the point a new inference is about to begin or
// the context window is about to be compacted (spec §4.3, Open Question
// default policy (a): synthesize rather than block or retry).
func (h *History) EnforcePairing(ctx context.Context, sessionID string) []models.ConversationMessage {
	h.mu.Lock()
	msgs := h.sessions[sessionID]
	h.mu.Unlock()

	pending := PendingToolCalls(msgs)
	if len(pending) == 0 {
		return nil
	}

	var synthesized []models.ConversationMessage
	for _, tc := range pending {
		content, _ := json.Marshal(map[string]any{"success": false, "error": "no_result"})
		msg := h.Append(ctx, sessionID, models.ConversationMessage{
			Role: models.RoleTool,
			ToolResult: &models.ToolMessageContent{
				ToolCallID:   tc.ToolCallID,
				Content:      string(content),
				IsToolResult: true,
				Success:      false,
				Error:        "no_result",
			},
		})
		synthesized = append(synthesized, msg)
	}
	return synthesized
}

// ValidatePairing returns a TOOL_PAIRING_VIOLATION if attempting to start
// a new inference while tool calls remain unanswered and pairing has not
// been enforced. Callers normally call EnforcePairing instead of this, but
// ValidatePairing is exposed for code paths that want to fail fast.
func ValidatePairing(msgs []models.ConversationMessage) error {
	if pending := PendingToolCalls(msgs); len(pending) > 0 {
		return mxferrors.New(mxferrors.ToolPairingViolation, "%d tool call(s) unanswered", len(pending))
	}
	return nil
}
