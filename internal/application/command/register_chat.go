package command

import (
	"context"
	"fmt"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER CHAT COMMAND
// Регистрирует чат при первом обращении (/start). Новый чат подписан на
// уведомления и ещё не выбрал группу.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterChatCommand содержит чат для регистрации.
type RegisterChatCommand struct {
	ChatID int64
}

// RegisterChatResult - состояние чата после регистрации.
type RegisterChatResult struct {
	Subscriber *subscriber.Subscriber
}

// RegisterChatHandler обрабатывает RegisterChatCommand.
type RegisterChatHandler struct {
	subscribers subscriber.Repository
}

// NewRegisterChatHandler создаёт обработчик.
func NewRegisterChatHandler(subscribers subscriber.Repository) *RegisterChatHandler {
	return &RegisterChatHandler{subscribers: subscribers}
}

// Handle выполняет регистрацию. Повторная регистрация ничего не меняет.
func (h *RegisterChatHandler) Handle(ctx context.Context, cmd RegisterChatCommand) (*RegisterChatResult, error) {
	s, err := h.subscribers.GetOrCreate(ctx, subscriber.ChatID(cmd.ChatID))
	if err != nil {
		return nil, fmt.Errorf("register_chat: %w", err)
	}
	return &RegisterChatResult{Subscriber: s}, nil
}
