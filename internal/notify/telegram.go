package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAnnouncer posts notices to one chat.
type TelegramAnnouncer struct {
	bot    telegramSender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramAnnouncer(token string, chatID int64, debug bool, logger *zerolog.Logger) (*TelegramAnnouncer, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = debug
	logger.Info().Str("bot", bot.Self.UserName).Int64("chat_id", chatID).Msg("telegram announcer ready")
	return &TelegramAnnouncer{bot: bot, chatID: chatID, logger: logger}, nil
}

func (a *TelegramAnnouncer) Announce(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
