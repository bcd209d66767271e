package handler

import (
	"context"

	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// ProfileHandler handles /mygroup, /subscribe and /unsubscribe.
type ProfileHandler struct {
	profile      *query.GetProfileHandler
	subscription *command.SetSubscriptionHandler
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profile *query.GetProfileHandler, subscription *command.SetSubscriptionHandler) *ProfileHandler {
	return &ProfileHandler{profile: profile, subscription: subscription}
}

// MyGroup handles /mygroup.
func (h *ProfileHandler) MyGroup(ctx context.Context, req Request) (*Response, error) {
	p, err := h.profile.Handle(ctx, query.GetProfileQuery{ChatID: req.ChatID})
	if err != nil {
		return nil, err
	}
	return reply(presenter.ProfileText(p)), nil
}

// Subscribe handles /subscribe.
func (h *ProfileHandler) Subscribe(ctx context.Context, req Request) (*Response, error) {
	return h.set(ctx, req.ChatID, true)
}

// Unsubscribe handles /unsubscribe.
func (h *ProfileHandler) Unsubscribe(ctx context.Context, req Request) (*Response, error) {
	return h.set(ctx, req.ChatID, false)
}

func (h *ProfileHandler) set(ctx context.Context, chatID int64, on bool) (*Response, error) {
	err := h.subscription.Handle(ctx, command.SetSubscriptionCommand{ChatID: chatID, Subscribed: on})
	if err != nil {
		return nil, err
	}
	if on {
		return reply(presenter.SubscribedText), nil
	}
	return reply(presenter.UnsubscribedText), nil
}

// Help handles /help.
func Help(_ context.Context, _ Request) (*Response, error) {
	return reply(presenter.HelpText), nil
}
