package bridges

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// discordPoster is the subset of *discordgo.Session a DiscordBridge
// uses, narrowed for test substitution mirroring
// channels/discord/adapter.go's session interface.
type discordPoster interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordBridge posts formatted events into one Discord channel.
// Grounded on channels/discord/adapter.go's Adapter.Send.
type DiscordBridge struct {
	session   discordPoster
	channelID string
}

// NewDiscordBridge builds a DiscordBridge posting into channelID using a
// bot token session.
func NewDiscordBridge(token, channelID string) (*DiscordBridge, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordBridge{session: session, channelID: channelID}, nil
}

// Post sends event.Summary as a plain-text Discord message.
func (d *DiscordBridge) Post(ctx context.Context, event FormattedEvent) error {
	_, err := d.session.ChannelMessageSend(d.channelID, event.Summary)
	return err
}
