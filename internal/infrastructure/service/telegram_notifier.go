package service

import (
	"context"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
)

// TelegramNotifier adapts telegram.Client to the command.NotificationSender interface.
type TelegramNotifier struct {
	client *telegram.Client
}

func NewTelegramNotifier(client *telegram.Client) *TelegramNotifier {
	return &TelegramNotifier{client: client}
}

// Send delivers text, translating Bot API failures into domain errors.
func (n *TelegramNotifier) Send(ctx context.Context, chatID subscriber.ChatID, text string) error {
	for _, chunk := range telegram.SplitMessage(text, telegram.MaxMessageLength) {
		if _, err := n.client.SendText(ctx, int64(chatID), chunk); err != nil {
			return translateTelegramError(err)
		}
	}
	return nil
}

func translateTelegramError(err error) error {
	if telegram.IsChatUnreachable(err) {
		return shared.WrapError("telegram", "Send", shared.ErrInvalidState, shared.ErrChatUnreachable.Message, err)
	}
	return shared.WrapError("telegram", "Send", shared.ErrExternalService, shared.ErrTelegramAPIFailed.Message, err)
}
