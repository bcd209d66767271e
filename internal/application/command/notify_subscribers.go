package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/subscriber"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFY SUBSCRIBERS COMMAND
// Рассылает подписчикам уведомление о новом документе. Для чатов с выбранной
// группой сравнивает отрисовку группы в старом и новом снимке.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateNoticeText - основной текст уведомления об обновлении.
const UpdateNoticeText = "🔔 Обновлено расписание! Вы можете запросить /schedule для своей группы."

// NotifySubscribersCommand содержит пару снимков для сравнения.
type NotifySubscribersCommand struct {
	// Previous - снимок до обновления (может быть nil).
	Previous *document.Snapshot

	// Current - новый снимок.
	Current *document.Snapshot
}

// Validate проверяет команду.
func (c NotifySubscribersCommand) Validate() error {
	if c.Current == nil {
		return errors.New("current snapshot is required")
	}
	return nil
}

// NotifySubscribersResult - итог рассылки.
type NotifySubscribersResult struct {
	Recipients   int
	Sent         int
	Failed       int
	Unsubscribed int

	// ChangedGroups - группы подписчиков, чьё расписание изменилось.
	ChangedGroups []timetable.GroupCode
}

// GroupChange описывает изменение расписания одной группы.
type GroupChange int

const (
	// GroupUnchanged - отрисовка группы не изменилась.
	GroupUnchanged GroupChange = iota
	// GroupChanged - отрисовка группы изменилась.
	GroupChanged
	// GroupMissing - группы нет в новом документе.
	GroupMissing
)

// NotificationSender отправляет текст в чат. Для чатов, которые больше не могут
// получать сообщения, возвращает ошибку, совпадающую с shared.ErrChatUnreachable.
type NotificationSender interface {
	Send(ctx context.Context, chatID subscriber.ChatID, text string) error
}

// NotifySubscribersConfig содержит параметры рассылки.
type NotifySubscribersConfig struct {
	// Workers - сколько групп отрисовывается и сколько сообщений отправляется параллельно.
	Workers int

	// MaxBlockLines - ограничение блока группы при сравнении.
	MaxBlockLines int

	Logger *slog.Logger
}

// NotifySubscribersHandler обрабатывает NotifySubscribersCommand.
type NotifySubscribersHandler struct {
	subscribers subscriber.Repository
	sender      NotificationSender
	workers     int
	maxLines    int
	logger      *slog.Logger
}

// NewNotifySubscribersHandler создаёт обработчик.
func NewNotifySubscribersHandler(subscribers subscriber.Repository, sender NotificationSender, cfg NotifySubscribersConfig) *NotifySubscribersHandler {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &NotifySubscribersHandler{
		subscribers: subscribers,
		sender:      sender,
		workers:     cfg.Workers,
		maxLines:    cfg.MaxBlockLines,
		logger:      cfg.Logger,
	}
}

// Handle выполняет рассылку. Ошибки отправки отдельным чатам считаются в
// результате и не прерывают рассылку.
func (h *NotifySubscribersHandler) Handle(ctx context.Context, cmd NotifySubscribersCommand) (*NotifySubscribersResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("notify_subscribers: %w", err)
	}

	recipients, err := h.subscribers.ListSubscribed(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify_subscribers: list subscribers: %w", err)
	}

	changes, err := h.compareGroups(ctx, cmd.Previous, cmd.Current, recipients)
	if err != nil {
		return nil, fmt.Errorf("notify_subscribers: %w", err)
	}

	result := &NotifySubscribersResult{Recipients: len(recipients)}
	for group, change := range changes {
		if change == GroupChanged {
			result.ChangedGroups = append(result.ChangedGroups, group)
		}
	}
	slices.Sort(result.ChangedGroups)

	var sent, failed, unsubscribed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(h.workers)
	for _, s := range recipients {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			text := NotificationText(s.Group, changes[s.Group])
			err := h.sender.Send(ctx, s.ChatID, text)
			switch {
			case err == nil:
				sent.Add(1)
			case errors.Is(err, shared.ErrChatUnreachable):
				failed.Add(1)
				if h.unsubscribe(ctx, s) {
					unsubscribed.Add(1)
				}
			default:
				failed.Add(1)
				h.logger.Warn("failed to send update notice", "chat_id", s.ChatID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Sent = int(sent.Load())
	result.Failed = int(failed.Load())
	result.Unsubscribed = int(unsubscribed.Load())

	h.logger.Info("update notice sent",
		"recipients", result.Recipients,
		"sent", result.Sent,
		"failed", result.Failed,
		"unsubscribed", result.Unsubscribed,
		"changed_groups", len(result.ChangedGroups),
	)

	return result, ctx.Err()
}

// compareGroups отрисовывает каждую группу подписчиков в обоих снимках.
func (h *NotifySubscribersHandler) compareGroups(ctx context.Context, previous, current *document.Snapshot, recipients []*subscriber.Subscriber) (map[timetable.GroupCode]GroupChange, error) {
	changes := make(map[timetable.GroupCode]GroupChange)
	var mu sync.Mutex

	seen := make(map[timetable.GroupCode]struct{})
	labels := timetable.RussianLabels()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for _, s := range recipients {
		if !s.HasGroup() {
			continue
		}
		if _, ok := seen[s.Group]; ok {
			continue
		}
		seen[s.Group] = struct{}{}

		group := s.Group
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			change := compareGroup(previous, current, group, h.maxLines, labels)
			mu.Lock()
			changes[group] = change
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return changes, nil
}

func compareGroup(previous, current *document.Snapshot, group timetable.GroupCode, maxLines int, labels timetable.Labels) GroupChange {
	next := current.Schedule(group, maxLines, labels)
	if next == labels.NotFound {
		return GroupMissing
	}
	if previous == nil || previous.Schedule(group, maxLines, labels) != next {
		return GroupChanged
	}
	return GroupUnchanged
}

// NotificationText собирает текст уведомления для чата с группой group.
func NotificationText(group timetable.GroupCode, change GroupChange) string {
	if group == "" {
		return UpdateNoticeText
	}
	switch change {
	case GroupChanged:
		return fmt.Sprintf("%s\n\nРасписание группы %s изменилось.", UpdateNoticeText, group)
	case GroupMissing:
		return fmt.Sprintf("%s\n\nГруппа %s не найдена в новом документе. Проверьте код группы через /start.", UpdateNoticeText, group)
	default:
		return fmt.Sprintf("%s\n\nРасписание группы %s не изменилось.", UpdateNoticeText, group)
	}
}

func (h *NotifySubscribersHandler) unsubscribe(ctx context.Context, s *subscriber.Subscriber) bool {
	s.Unsubscribe(time.Now())
	if err := h.subscribers.Save(ctx, s); err != nil {
		h.logger.Warn("failed to unsubscribe unreachable chat", "chat_id", s.ChatID, "error", err)
		return false
	}
	h.logger.Info("unreachable chat unsubscribed", "chat_id", s.ChatID)
	return true
}
