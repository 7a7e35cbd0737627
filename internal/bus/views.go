package bus

import (
	"context"
	"sync"
)

// ChannelView is the channel-scoped sub-view an agent handle exposes as
// channelService.on(topic): subscriptions automatically filter by
// channelId, and outgoing emissions are rewritten to inject it (spec
// §4.1(b)).
type ChannelView struct {
	bus       *Bus
	channelID string
	emitterID string
}

// NewChannelView binds emitterID (typically an agentId) to channelID.
func NewChannelView(b *Bus, emitterID, channelID string) *ChannelView {
	return &ChannelView{bus: b, channelID: channelID, emitterID: emitterID}
}

// On subscribes to topic scoped to this view's channel.
func (v *ChannelView) On(topic string) *Subscription {
	return v.bus.Subscribe(Filter{Topic: topic, ChannelID: v.channelID})
}

// ChannelID returns the channel this view is scoped to.
func (v *ChannelView) ChannelID() string { return v.channelID }

// Emit publishes data under eventType, injecting this view's channelID.
func (v *ChannelView) Emit(ctx context.Context, eventType string, data any) error {
	return v.bus.Publish(ctx, v.emitterID, &Envelope{
		Type:      eventType,
		ChannelID: v.channelID,
		AgentID:   v.emitterID,
		Data:      data,
	})
}

// Monitor is a read-only observer bound to one channel; it receives every
// whitelisted event for that channel regardless of agent identity and may
// never emit (spec §4.1(c), §4.10).
type Monitor struct {
	sub       *Subscription
	channelID string

	once sync.Once
	out  chan *Envelope
}

// NewMonitor creates an observer-only view on channelID. The returned
// Monitor owns sub and must be Closed by the caller.
func NewMonitor(b *Bus, channelID string) *Monitor {
	sub := b.Subscribe(Filter{ChannelID: channelID})
	return &Monitor{sub: sub, channelID: channelID}
}

// Events returns the channel of delivered envelopes. Only envelopes whose
// Type passes IsPublic should ever have been published onto the bus by
// well-behaved emitters, but Monitor re-checks defensively.
func (m *Monitor) Events() <-chan *Envelope {
	m.once.Do(func() {
		m.out = make(chan *Envelope, DefaultInboxSize)
		go func() {
			defer close(m.out)
			for env := range m.sub.Events() {
				if !IsPublic(env.Type) {
					continue
				}
				m.out <- env
			}
		}()
	})
	return m.out
}

// ChannelID returns the channel this monitor observes.
func (m *Monitor) ChannelID() string { return m.channelID }

// Close releases the underlying subscription.
func (m *Monitor) Close() { m.sub.Close() }
