package bridges

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// telegramPoster is the subset of *bot.Bot a TelegramBridge uses,
// narrowed for test substitution mirroring
// channels/telegram/bot_client.go's BotClient interface.
type telegramPoster interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramBridge posts formatted events into one Telegram chat.
// Grounded on channels/telegram/adapter.go's Adapter.Send.
type TelegramBridge struct {
	client *bot.Bot
	chatID int64
}

// NewTelegramBridge builds a TelegramBridge posting into chatID using
// botToken.
func NewTelegramBridge(botToken string, chatID int64) (*TelegramBridge, error) {
	b, err := bot.New(botToken)
	if err != nil {
		return nil, err
	}
	return &TelegramBridge{client: b, chatID: chatID}, nil
}

// Post sends event.Summary as a plain-text Telegram message.
func (t *TelegramBridge) Post(ctx context.Context, event FormattedEvent) error {
	_, err := t.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   event.Summary,
	})
	return err
}

// NewTelegramBridgeFromConfig builds a TelegramBridge from a string chat
// ID as it arrives from YAML configuration, matching the teacher's
// config-string-to-int64 handling for chat identifiers.
func NewTelegramBridgeFromConfig(botToken, chatID string) (*TelegramBridge, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, err
	}
	return NewTelegramBridge(botToken, id)
}
