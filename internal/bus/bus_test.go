package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPublicWhitelist(t *testing.T) {
	cases := map[string]bool{
		"message.created":            true,
		"task.created":               true,
		"task.internal.locked":       false,
		"memory.get_result":          true,
		"memory.put_result":          false,
		"mcp.tool_call":              true,
		"controlloop.reflection":     true,
		"agent.connected":            true,
		"channel.agent_joined":       true,
		"some.other.event":          false,
	}
	for eventType, want := range cases {
		assert.Equal(t, want, IsPublic(eventType), eventType)
	}
}

func TestBusOrderingPerEmitterChannel(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(Filter{ChannelID: "c1"})
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, "agentA", &Envelope{Type: "message.created", ChannelID: "c1", Data: i}))
	}

	for i := 0; i < 5; i++ {
		select {
		case env := <-sub.Events():
			assert.Equal(t, i, env.Data)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMonitorIsolationByChannel(t *testing.T) {
	b := New(nil)
	monA := NewMonitor(b, "A")
	monB := NewMonitor(b, "B")
	defer monA.Close()
	defer monB.Close()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "emitter1", &Envelope{Type: "message.created", ChannelID: "A", Data: "hello"}))

	select {
	case env := <-monA.Events():
		assert.Equal(t, "A", env.ChannelID)
	case <-time.After(time.Second):
		t.Fatal("monitor A never received event")
	}

	select {
	case env := <-monB.Events():
		t.Fatalf("monitor B should not receive channel A event, got %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorOnlyDeliversWhitelisted(t *testing.T) {
	b := New(nil)
	mon := NewMonitor(b, "A")
	defer mon.Close()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "e", &Envelope{Type: "task.internal.lock_acquired", ChannelID: "A", Data: nil}))
	require.NoError(t, b.Publish(ctx, "e", &Envelope{Type: "task.created", ChannelID: "A", Data: "visible"}))

	select {
	case env := <-mon.Events():
		assert.Equal(t, "task.created", env.Type)
	case <-time.After(time.Second):
		t.Fatal("monitor never received whitelisted event")
	}
}

func TestChannelViewScopesEmissions(t *testing.T) {
	b := New(nil)
	view := NewChannelView(b, "agent1", "chanX")
	sub := b.Subscribe(Filter{ChannelID: "chanX"})
	defer sub.Close()

	require.NoError(t, view.Emit(context.Background(), "message.created", "hi"))

	select {
	case env := <-sub.Events():
		assert.Equal(t, "chanX", env.ChannelID)
		assert.Equal(t, "agent1", env.AgentID)
	case <-time.After(time.Second):
		t.Fatal("channel view emission not delivered")
	}
}

func TestDropOldestBackpressure(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe(Filter{Topic: "controlloop."})
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < DefaultInboxSize+10; i++ {
		require.NoError(t, b.Publish(ctx, "e", &Envelope{Type: "controlloop.reasoning", Data: i}))
	}

	// Inbox should hold at most DefaultInboxSize events, with the newest
	// surviving (oldest dropped).
	assert.LessOrEqual(t, len(sub.Events()), DefaultInboxSize)
}
