// Package bridges lets an operator attach an external chat platform as a
// spectator Channel Monitor (spec §4.10 enrichment): whitelisted bus
// events are translated into platform messages. A Bridge never receives
// inbound traffic and never emits back onto the bus — it is strictly an
// outbound sink, unlike the teacher's full duplex channel adapters.
package bridges

import "context"

// FormattedEvent is one bus event rendered into a platform-agnostic
// message ready for a Bridge to post.
type FormattedEvent struct {
	ChannelID string
	EventType string
	Summary   string
}

// Bridge posts a formatted event to one external platform channel.
// Grounded on the teacher's channels.OutboundAdapter
// (internal/channels/channel.go), narrowed to the one outbound-only
// method a spectator needs.
type Bridge interface {
	Post(ctx context.Context, event FormattedEvent) error
}
