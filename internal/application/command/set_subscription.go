package command

import (
	"context"
	"fmt"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
)

// SetSubscriptionCommand включает или отключает уведомления чата.
type SetSubscriptionCommand struct {
	ChatID     int64
	Subscribed bool
}

// SetSubscriptionHandler обрабатывает SetSubscriptionCommand (/subscribe, /unsubscribe).
type SetSubscriptionHandler struct {
	subscribers subscriber.Repository
	now         func() time.Time
}

// NewSetSubscriptionHandler создаёт обработчик.
func NewSetSubscriptionHandler(subscribers subscriber.Repository) *SetSubscriptionHandler {
	return &SetSubscriptionHandler{subscribers: subscribers, now: time.Now}
}

// Handle сохраняет новое состояние подписки.
func (h *SetSubscriptionHandler) Handle(ctx context.Context, cmd SetSubscriptionCommand) error {
	s, err := h.subscribers.GetOrCreate(ctx, subscriber.ChatID(cmd.ChatID))
	if err != nil {
		return fmt.Errorf("set_subscription: %w", err)
	}

	if cmd.Subscribed {
		s.Subscribe(h.now())
	} else {
		s.Unsubscribe(h.now())
	}

	if err := h.subscribers.Save(ctx, s); err != nil {
		return fmt.Errorf("set_subscription: save: %w", err)
	}
	return nil
}
