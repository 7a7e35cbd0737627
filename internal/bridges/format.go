package bridges

import (
	"fmt"

	"github.com/mxf-project/mxf/internal/bus"
)

// FormatEvent renders env into a short human-readable summary for a chat
// platform, grounded on the teacher's channel message formatting
// (internal/channels/slack/attachments.go's text-summarization idiom)
// narrowed to a single-line digest since bridges post plain text, not
// rich attachments.
func FormatEvent(env *bus.Envelope) FormattedEvent {
	var summary string
	switch env.Type {
	case "message.sent":
		summary = fmt.Sprintf("[%s] new message", env.AgentID)
	case "task.created", "task.assigned", "task.completed", "task.failed", "task.cancelled":
		summary = fmt.Sprintf("[%s] %s", env.AgentID, env.Type)
	case "controlloop.observation", "controlloop.reasoning", "controlloop.plan", "controlloop.action", "controlloop.reflection":
		summary = fmt.Sprintf("[%s] entered %s", env.AgentID, env.Type)
	default:
		summary = fmt.Sprintf("[%s] %s", env.AgentID, env.Type)
	}
	return FormattedEvent{ChannelID: env.ChannelID, EventType: env.Type, Summary: summary}
}
