package bridges

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscordPoster struct {
	lastChannel string
	err         error
}

func (f *fakeDiscordPoster) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.lastChannel = channelID
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "1"}, nil
}

func TestDiscordBridgePostsToConfiguredChannel(t *testing.T) {
	fp := &fakeDiscordPoster{}
	b := &DiscordBridge{session: fp, channelID: "123456"}
	require.NoError(t, b.Post(context.Background(), FormattedEvent{Summary: "hello"}))
	assert.Equal(t, "123456", fp.lastChannel)
}

func TestDiscordBridgePropagatesPostError(t *testing.T) {
	fp := &fakeDiscordPoster{err: errors.New("boom")}
	b := &DiscordBridge{session: fp, channelID: "123456"}
	err := b.Post(context.Background(), FormattedEvent{Summary: "hello"})
	assert.EqualError(t, err, "boom")
}
