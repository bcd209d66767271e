package handler

import (
	"context"
	"errors"

	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP HANDLER
// Сохраняет группу чата: кнопка группы, кнопка "Нету моей группы" и
// ручной ввод кода следующим сообщением.
// ══════════════════════════════════════════════════════════════════════════════

// GroupHandler handles group callbacks and manual group input.
type GroupHandler struct {
	selectGroup   *command.SelectGroupHandler
	requestManual *command.RequestManualGroupHandler
	profile       *query.GetProfileHandler
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(
	selectGroup *command.SelectGroupHandler,
	requestManual *command.RequestManualGroupHandler,
	profile *query.GetProfileHandler,
) *GroupHandler {
	return &GroupHandler{
		selectGroup:   selectGroup,
		requestManual: requestManual,
		profile:       profile,
	}
}

// Callback handles "group|<code>" and "group|manual".
func (h *GroupHandler) Callback(ctx context.Context, req Request) (*Response, error) {
	if req.Args == presenter.PayloadManual {
		if err := h.requestManual.Handle(ctx, command.RequestManualGroupCommand{ChatID: req.ChatID}); err != nil {
			return nil, err
		}
		return reply(presenter.ManualGroupText), nil
	}

	return h.save(ctx, req.ChatID, req.Args, false)
}

// Text handles a plain message. It is a group code only while the chat awaits
// manual input; otherwise private chats get a hint and groups get silence.
func (h *GroupHandler) Text(ctx context.Context, req Request) (*Response, error) {
	profile, err := h.profile.Handle(ctx, query.GetProfileQuery{ChatID: req.ChatID})
	if err != nil {
		return nil, err
	}

	if !profile.AwaitingGroup {
		if !req.Private {
			return nil, nil
		}
		return reply(presenter.FreeTextHintText), nil
	}

	return h.save(ctx, req.ChatID, req.Args, true)
}

func (h *GroupHandler) save(ctx context.Context, chatID int64, input string, manual bool) (*Response, error) {
	res, err := h.selectGroup.Handle(ctx, command.SelectGroupCommand{
		ChatID: chatID,
		Input:  input,
		Manual: manual,
	})
	if err != nil {
		if errors.Is(err, shared.ErrInvalidGroupCode) {
			return reply(presenter.InvalidGroupText), nil
		}
		return nil, err
	}

	return &Response{
		Text:   presenter.GroupSavedText(res.Group.String(), res.KnownGroup),
		Notice: res.Group.String(),
	}, nil
}
