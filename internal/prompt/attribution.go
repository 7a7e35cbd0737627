package prompt

import (
	"fmt"

	"github.com/mxf-project/mxf/pkg/models"
)

// Attribute returns msg's content prefixed with its originating agent,
// `[agentId]: content` (spec §4.9: "each historical message is presented
// ... with prefix [agentId]: content, never as a single concatenated
// text blob"). Messages without a recorded agent (user/system/tool
// messages) are returned unprefixed.
func Attribute(msg models.ConversationMessage) string {
	agentID, _ := msg.Metadata["agent_id"].(string)
	if agentID == "" {
		return msg.Content
	}
	return fmt.Sprintf("[%s]: %s", agentID, msg.Content)
}

// AttributeHistory applies Attribute to every message in msgs, returning
// a parallel slice of display strings. The underlying messages are left
// unmodified; attribution is a presentation-layer concern applied when
// building the provider-facing turn list, not a stored transformation.
func AttributeHistory(msgs []models.ConversationMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = Attribute(m)
	}
	return out
}
