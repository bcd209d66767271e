package command

import (
	"context"
	"fmt"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// SELECT GROUP COMMAND
// Сохраняет группу чата: из кнопки выбора группы или из ручного ввода.
// ══════════════════════════════════════════════════════════════════════════════

// SelectGroupCommand содержит выбор группы.
type SelectGroupCommand struct {
	ChatID int64

	// Input - код группы из кнопки или текст ручного ввода.
	Input string

	// Manual - ввод набран пользователем; он приводится к верхнему регистру.
	Manual bool
}

// SelectGroupResult - итог выбора.
type SelectGroupResult struct {
	Group timetable.GroupCode

	// KnownGroup - группа есть в каталоге текущего документа.
	KnownGroup bool
}

// SnapshotProvider отдаёт текущий снимок документа.
type SnapshotProvider interface {
	Current() (*document.Snapshot, error)
}

// SelectGroupHandler обрабатывает SelectGroupCommand.
type SelectGroupHandler struct {
	subscribers subscriber.Repository
	snapshots   SnapshotProvider
	now         func() time.Time
}

// NewSelectGroupHandler создаёт обработчик.
func NewSelectGroupHandler(subscribers subscriber.Repository, snapshots SnapshotProvider) *SelectGroupHandler {
	return &SelectGroupHandler{
		subscribers: subscribers,
		snapshots:   snapshots,
		now:         time.Now,
	}
}

// Handle сохраняет группу. Некорректный код возвращает shared.ErrInvalidGroupCode,
// состояние чата при этом не меняется, и режим ручного ввода сохраняется.
func (h *SelectGroupHandler) Handle(ctx context.Context, cmd SelectGroupCommand) (*SelectGroupResult, error) {
	var (
		group timetable.GroupCode
		err   error
	)
	if cmd.Manual {
		group, err = subscriber.NormalizeGroupInput(cmd.Input)
	} else {
		group, err = timetable.ParseGroupCode(cmd.Input)
	}
	if err != nil {
		return nil, fmt.Errorf("select_group: %w", err)
	}

	s, err := h.subscribers.GetOrCreate(ctx, subscriber.ChatID(cmd.ChatID))
	if err != nil {
		return nil, fmt.Errorf("select_group: %w", err)
	}

	now := h.now()
	s.SelectGroup(group, now)
	s.Subscribe(now)

	if err := h.subscribers.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("select_group: save: %w", err)
	}

	result := &SelectGroupResult{Group: group}
	if snap, err := h.snapshots.Current(); err == nil {
		result.KnownGroup = snap.Index.Contains(group)
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST MANUAL GROUP COMMAND
// Включает режим ручного ввода ("Нету моей группы").
// ══════════════════════════════════════════════════════════════════════════════

// RequestManualGroupCommand содержит чат.
type RequestManualGroupCommand struct {
	ChatID int64
}

// RequestManualGroupHandler обрабатывает RequestManualGroupCommand.
type RequestManualGroupHandler struct {
	subscribers subscriber.Repository
	now         func() time.Time
}

// NewRequestManualGroupHandler создаёт обработчик.
func NewRequestManualGroupHandler(subscribers subscriber.Repository) *RequestManualGroupHandler {
	return &RequestManualGroupHandler{subscribers: subscribers, now: time.Now}
}

// Handle включает режим ручного ввода.
func (h *RequestManualGroupHandler) Handle(ctx context.Context, cmd RequestManualGroupCommand) error {
	s, err := h.subscribers.GetOrCreate(ctx, subscriber.ChatID(cmd.ChatID))
	if err != nil {
		return fmt.Errorf("request_manual_group: %w", err)
	}

	s.AwaitGroupInput(h.now())
	if err := h.subscribers.Save(ctx, s); err != nil {
		return fmt.Errorf("request_manual_group: save: %w", err)
	}
	return nil
}
