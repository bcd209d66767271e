package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SCHEDULE QUERY
// Отрисовывает расписание группы из текущего снимка. Готовые отрисовки
// кэшируются по паре (отпечаток документа, группа).
// ══════════════════════════════════════════════════════════════════════════════

// GetScheduleQuery содержит параметры запроса. Если Group пуст, берётся группа
// подписчика ChatID.
type GetScheduleQuery struct {
	ChatID int64
	Group  string
}

// ScheduleDTO - отрисованное расписание.
type ScheduleDTO struct {
	Group timetable.GroupCode

	// Text - отрисованный текст (или сообщение "группа не найдена").
	Text string

	// Found - группа найдена в документе.
	Found bool

	// Cached - ответ взят из кэша.
	Cached bool

	Version   int64
	FetchedAt time.Time
}

// RenderCache кэширует отрисовки. Ошибки кэша обрабатываются реализацией.
type RenderCache interface {
	Get(ctx context.Context, fingerprint string, group timetable.GroupCode) (string, bool)
	Set(ctx context.Context, fingerprint string, group timetable.GroupCode, rendered string)
}

// GetScheduleHandler обрабатывает GetScheduleQuery.
type GetScheduleHandler struct {
	snapshots   SnapshotProvider
	subscribers subscriber.Repository
	cache       RenderCache
	labels      timetable.Labels
	maxLines    int
}

// GetScheduleConfig содержит параметры отрисовки.
type GetScheduleConfig struct {
	Labels        timetable.Labels
	MaxBlockLines int
}

// NewGetScheduleHandler создаёт обработчик. cache может быть nil.
func NewGetScheduleHandler(snapshots SnapshotProvider, subscribers subscriber.Repository, cache RenderCache, cfg GetScheduleConfig) *GetScheduleHandler {
	if cfg.Labels == (timetable.Labels{}) {
		cfg.Labels = timetable.RussianLabels()
	}
	return &GetScheduleHandler{
		snapshots:   snapshots,
		subscribers: subscribers,
		cache:       cache,
		labels:      cfg.Labels,
		maxLines:    cfg.MaxBlockLines,
	}
}

// Handle выполняет запрос.
// Ошибки: shared.ErrNoGroupSelected (у чата нет группы), shared.ErrInvalidGroupCode,
// shared.ErrDocumentNotLoaded. Отсутствие группы в документе ошибкой не является.
func (h *GetScheduleHandler) Handle(ctx context.Context, q GetScheduleQuery) (*ScheduleDTO, error) {
	group, err := h.resolveGroup(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("get_schedule: %w", err)
	}

	snap, err := h.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("get_schedule: %w", err)
	}

	dto := &ScheduleDTO{
		Group:     group,
		Version:   snap.Version,
		FetchedAt: snap.FetchedAt,
	}

	if h.cache != nil {
		if text, ok := h.cache.Get(ctx, snap.Fingerprint, group); ok {
			dto.Text = text
			dto.Found = text != h.labels.NotFound
			dto.Cached = true
			return dto, nil
		}
	}

	dto.Text = snap.Schedule(group, h.maxLines, h.labels)
	dto.Found = dto.Text != h.labels.NotFound

	if h.cache != nil {
		h.cache.Set(ctx, snap.Fingerprint, group, dto.Text)
	}
	return dto, nil
}

func (h *GetScheduleHandler) resolveGroup(ctx context.Context, q GetScheduleQuery) (timetable.GroupCode, error) {
	if q.Group != "" {
		return timetable.ParseGroupCode(q.Group)
	}

	s, err := h.subscribers.Get(ctx, subscriber.ChatID(q.ChatID))
	if err != nil {
		if errors.Is(err, shared.ErrSubscriberNotFound) {
			return "", shared.ErrNoGroupSelected
		}
		return "", err
	}
	return s.RequireGroup()
}
