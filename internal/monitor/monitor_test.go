package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxf-project/mxf/internal/bus"
)

func TestOpenDeliversWhitelistedChannelEvents(t *testing.T) {
	b := bus.New(nil)
	reg := NewRegistry(b)

	mon := reg.Open("session-1", "chan-1")
	defer reg.CloseSession("session-1")

	require.NoError(t, b.Publish(context.Background(), "agent-1", &bus.Envelope{
		Type:      "message.sent",
		ChannelID: "chan-1",
	}))

	select {
	case env := <-mon.Events():
		assert.Equal(t, "chan-1", env.ChannelID)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestCloseSessionReleasesAllOwnedMonitors(t *testing.T) {
	b := bus.New(nil)
	reg := NewRegistry(b)

	reg.Open("session-1", "chan-1")
	reg.Open("session-1", "chan-2")
	assert.Equal(t, 2, reg.ActiveCount("session-1"))

	reg.CloseSession("session-1")
	assert.Equal(t, 0, reg.ActiveCount("session-1"))
}

func TestMonitorsAreIsolatedPerSession(t *testing.T) {
	b := bus.New(nil)
	reg := NewRegistry(b)

	reg.Open("session-1", "chan-1")
	reg.Open("session-2", "chan-1")

	assert.Equal(t, 1, reg.ActiveCount("session-1"))
	assert.Equal(t, 1, reg.ActiveCount("session-2"))

	reg.CloseSession("session-1")
	assert.Equal(t, 0, reg.ActiveCount("session-1"))
	assert.Equal(t, 1, reg.ActiveCount("session-2"))
}
