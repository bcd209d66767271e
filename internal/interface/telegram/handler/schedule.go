package handler

import (
	"context"
	"strings"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE HANDLER
// /schedule без аргументов отдаёт расписание сохранённой группы,
// /schedule ИС-951 - расписание указанной группы.
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleHandler handles /schedule.
type ScheduleHandler struct {
	schedule *query.GetScheduleHandler
	now      func() time.Time
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(schedule *query.GetScheduleHandler) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule, now: time.Now}
}

// Handle handles /schedule [group].
func (h *ScheduleHandler) Handle(ctx context.Context, req Request) (*Response, error) {
	q := query.GetScheduleQuery{ChatID: req.ChatID}

	if arg := strings.TrimSpace(req.Args); arg != "" {
		group, err := subscriber.NormalizeGroupInput(arg)
		if err != nil {
			return replyOrError(err)
		}
		q.Group = group.String()
	}

	dto, err := h.schedule.Handle(ctx, q)
	if err != nil {
		return replyOrError(err)
	}
	return reply(presenter.ScheduleText(dto, h.now())), nil
}
