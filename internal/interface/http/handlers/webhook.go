package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SecretTokenHeader carries the secret given to setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher queues a Telegram update for handling.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, update *telegram.Update) error
}

// TelegramWebhook receives updates pushed by Telegram.
//
// The update is only queued; Telegram gets 200 right away and the reply is
// sent through the Bot API. Malformed bodies are acknowledged too, otherwise
// Telegram keeps redelivering them.
type TelegramWebhook struct {
	dispatcher UpdateDispatcher
	secret     string
	logger     *slog.Logger
}

// NewTelegramWebhook creates the webhook handler. An empty secret disables
// the header check.
func NewTelegramWebhook(dispatcher UpdateDispatcher, secret string, logger *slog.Logger) *TelegramWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramWebhook{
		dispatcher: dispatcher,
		secret:     secret,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *TelegramWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook request with wrong secret token", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn("failed to decode webhook update", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), &update); err != nil {
		h.logger.Error("failed to dispatch webhook update", "update_id", update.UpdateID, "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}
