// Package handler contains Telegram command and callback handlers.
// Each handler follows the pattern: receive request → call application layer →
// format response. Expected domain outcomes (no group, document not loaded,
// bad group code) become user-facing texts; only unexpected failures are
// returned as errors.
package handler

import (
	"context"
	"errors"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// Request is what a handler gets from the router.
type Request struct {
	ChatID int64
	UserID int64

	// MessageID is the message with the command, or the message carrying the
	// inline keyboard for callbacks.
	MessageID int64

	// Args is the text after the command, the callback payload or the full text
	// of a plain message.
	Args string

	// Private is set for one-to-one chats.
	Private bool
}

// Response is what the router sends back.
type Response struct {
	Text     string
	Keyboard *telegram.InlineKeyboardMarkup

	// Edit replaces the message that carried the keyboard instead of sending
	// a new one. Only meaningful for callbacks.
	Edit bool

	// Notice is shown as the callback answer toast.
	Notice string
}

// Func handles one request. A nil response means "say nothing".
type Func func(ctx context.Context, req Request) (*Response, error)

func reply(text string) *Response {
	return &Response{Text: text}
}

// knownErrorText maps expected domain errors to user texts.
func knownErrorText(err error) (string, bool) {
	switch {
	case errors.Is(err, shared.ErrDocumentNotLoaded):
		return presenter.NotLoadedText, true
	case errors.Is(err, shared.ErrNoGroupSelected):
		return presenter.NoGroupText, true
	case errors.Is(err, shared.ErrInvalidGroupCode):
		return presenter.InvalidGroupText, true
	default:
		return "", false
	}
}

// replyOrError turns an expected error into a reply and passes others through.
func replyOrError(err error) (*Response, error) {
	if text, ok := knownErrorText(err); ok {
		return reply(text), nil
	}
	return nil, err
}
