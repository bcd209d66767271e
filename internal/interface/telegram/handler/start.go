package handler

import (
	"context"
	"fmt"

	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START HANDLER
// /start registers the chat and shows the unit keyboard; a unit button shows
// the first groups of that unit.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler handles /start and institute callbacks.
type StartHandler struct {
	register *command.RegisterChatHandler
	catalog  *query.CatalogHandler
}

// NewStartHandler creates a new StartHandler.
func NewStartHandler(register *command.RegisterChatHandler, catalog *query.CatalogHandler) *StartHandler {
	return &StartHandler{register: register, catalog: catalog}
}

// Start handles /start.
func (h *StartHandler) Start(ctx context.Context, req Request) (*Response, error) {
	if _, err := h.register.Handle(ctx, command.RegisterChatCommand{ChatID: req.ChatID}); err != nil {
		return nil, err
	}

	units, err := h.catalog.ListUnits(ctx, query.ListUnitsQuery{Limit: presenter.MaxUnitButtons})
	if err != nil {
		return replyOrError(err)
	}
	if len(units.Units) == 0 {
		return reply(presenter.NoUnitsText), nil
	}

	return &Response{
		Text:     presenter.ChooseUnitText,
		Keyboard: presenter.UnitsKeyboard(units.Units),
	}, nil
}

// Institute handles "institute|<unit>" callbacks.
func (h *StartHandler) Institute(ctx context.Context, req Request) (*Response, error) {
	unit, err := h.resolveUnit(ctx, presenter.ParseUnitRef(req.Args))
	if err != nil {
		return replyOrError(err)
	}
	if unit == "" {
		return &Response{Text: presenter.UnitListChangedText, Notice: presenter.UnknownCallbackText}, nil
	}

	groups, err := h.catalog.ListGroups(ctx, query.ListGroupsQuery{Unit: unit, Limit: presenter.MaxGroupButtons})
	if err != nil {
		return replyOrError(err)
	}
	if groups.Total == 0 {
		return reply(presenter.UnitNotFoundText(unit)), nil
	}

	return &Response{
		Text:     presenter.GroupsText(unit, len(groups.Groups), groups.Total),
		Keyboard: presenter.GroupsKeyboard(groups.Groups),
		Edit:     true,
	}, nil
}

// resolveUnit returns "" when a position no longer points into the unit list.
func (h *StartHandler) resolveUnit(ctx context.Context, ref presenter.UnitRef) (string, error) {
	if ref.Position < 0 {
		return ref.Name, nil
	}

	units, err := h.catalog.ListUnits(ctx, query.ListUnitsQuery{})
	if err != nil {
		return "", fmt.Errorf("resolve unit: %w", err)
	}
	if ref.Position >= len(units.Units) {
		return "", nil
	}
	return units.Units[ref.Position], nil
}
