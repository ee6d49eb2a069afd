package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tw-action-bot/internal/domain"
)

// Telegram доставляет оператору сообщения о сбоях через бота.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.Notifier = (*Telegram)(nil)

// NewTelegram создаёт нотификатор.
func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("создание бота: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

// Notify отправляет сообщение в чат оператора.
func (t *Telegram) Notify(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Error().Err(err).Msg("не удалось уведомить оператора")
		return fmt.Errorf("отправка уведомления: %w", err)
	}
	return nil
}

// Noop используется, когда бот оператора не настроен.
type Noop struct{}

var _ domain.Notifier = Noop{}

// Notify ничего не делает.
func (Noop) Notify(context.Context, string) error { return nil }
