package bridges

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mxf-project/mxf/internal/bus"
)

func TestFormatEventTaskEvent(t *testing.T) {
	event := FormatEvent(&bus.Envelope{Type: "task.completed", ChannelID: "chan-1", AgentID: "agent-1"})
	assert.Equal(t, "chan-1", event.ChannelID)
	assert.Equal(t, "task.completed", event.EventType)
	assert.Contains(t, event.Summary, "agent-1")
	assert.Contains(t, event.Summary, "task.completed")
}

func TestFormatEventControlLoopPhase(t *testing.T) {
	event := FormatEvent(&bus.Envelope{Type: "controlloop.reasoning", ChannelID: "chan-1", AgentID: "agent-2"})
	assert.Contains(t, event.Summary, "controlloop.reasoning")
}

func TestFormatEventUnknownType(t *testing.T) {
	event := FormatEvent(&bus.Envelope{Type: "agent.connected", ChannelID: "chan-1", AgentID: "agent-3"})
	assert.Contains(t, event.Summary, "agent-3")
}
