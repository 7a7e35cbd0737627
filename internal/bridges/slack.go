package bridges

import (
	"context"

	"github.com/slack-go/slack"
)

// slackPoster is the subset of *slack.Client a SlackBridge uses,
// narrowed for test substitution the way the teacher's
// channels/slack/testable.go isolates socketmode/client calls.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackBridge posts formatted events into one Slack channel via a bot
// token, grounded on channels/slack/adapter.go's Adapter.Send.
type SlackBridge struct {
	client    slackPoster
	channelID string
}

// NewSlackBridge builds a SlackBridge posting into channelID using
// botToken.
func NewSlackBridge(botToken, channelID string) *SlackBridge {
	return &SlackBridge{client: slack.New(botToken), channelID: channelID}
}

// Post sends event.Summary as a plain-text Slack message.
func (s *SlackBridge) Post(ctx context.Context, event FormattedEvent) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(event.Summary, false))
	return err
}
