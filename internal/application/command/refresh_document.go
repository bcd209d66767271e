// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH DOCUMENT COMMAND
// Загружает опубликованный документ, и если его отпечаток изменился, строит новый
// снимок, сохраняет его, атомарно подменяет текущий и уведомляет подписчиков.
// ══════════════════════════════════════════════════════════════════════════════

// refreshLockResource - имя распределённой блокировки обновления.
const refreshLockResource = "document-refresh"

// RefreshDocumentCommand содержит параметры обновления.
type RefreshDocumentCommand struct {
	// Force - пересобрать снимок даже при неизменном отпечатке.
	// Уведомления при этом не отправляются.
	Force bool

	// Reason - откуда пришёл запрос ("scheduler", "watcher", "startup").
	Reason string
}

// RefreshDocumentResult описывает итог обновления.
type RefreshDocumentResult struct {
	// Snapshot - установленный снимок.
	Snapshot *document.Snapshot

	// Previous - снимок, который был текущим до обновления (может быть nil).
	Previous *document.Snapshot

	// Notification - итог рассылки; nil, если рассылки не было.
	Notification *NotifySubscribersResult

	// Duration - сколько заняло обновление.
	Duration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// SourceDocument - загруженный документ с вычисленным отпечатком.
type SourceDocument struct {
	Data        []byte
	Fingerprint string
	SourceURL   string
	FetchedAt   time.Time
}

// ExtractedDocument - текст, извлечённый из документа.
type ExtractedDocument struct {
	Text      string
	PageCount int
}

// DocumentSource определяет источник документа.
// Реализация находится в infrastructure/service.
type DocumentSource interface {
	// Fetch загружает документ и вычисляет его отпечаток.
	Fetch(ctx context.Context) (*SourceDocument, error)

	// Archive сохраняет исходные байты локально (если настроено).
	Archive(ctx context.Context, doc *SourceDocument) error

	// Extract извлекает текст документа.
	Extract(ctx context.Context, doc *SourceDocument) (*ExtractedDocument, error)
}

// RefreshLocker не даёт нескольким процессам обновлять документ одновременно.
type RefreshLocker interface {
	// Acquire захватывает блокировку и возвращает функцию её освобождения.
	Acquire(ctx context.Context, resource string) (func(context.Context) error, error)
}

// CachePurger удаляет закэшированные отрисовки устаревших документов.
type CachePurger interface {
	Purge(ctx context.Context, keepFingerprint string) (int, error)
}

// SubscriberNotifier рассылает уведомление об обновлении.
type SubscriberNotifier interface {
	Handle(ctx context.Context, cmd NotifySubscribersCommand) (*NotifySubscribersResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RefreshDocumentHandlerConfig содержит зависимости обработчика.
// Locker, Purger и Notifier необязательны.
type RefreshDocumentHandlerConfig struct {
	Source   DocumentSource
	Store    *document.Store
	Repo     document.Repository
	Locker   RefreshLocker
	Purger   CachePurger
	Notifier SubscriberNotifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// RefreshDocumentHandler обрабатывает RefreshDocumentCommand.
type RefreshDocumentHandler struct {
	source   DocumentSource
	store    *document.Store
	repo     document.Repository
	locker   RefreshLocker
	purger   CachePurger
	notifier SubscriberNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRefreshDocumentHandler создаёт обработчик.
func NewRefreshDocumentHandler(cfg RefreshDocumentHandlerConfig) *RefreshDocumentHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RefreshDocumentHandler{
		source:   cfg.Source,
		store:    cfg.Store,
		repo:     cfg.Repo,
		locker:   cfg.Locker,
		purger:   cfg.Purger,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Restore устанавливает последний сохранённый снимок, если текущего ещё нет.
// Возвращает false, если сохранённых снимков нет.
func (h *RefreshDocumentHandler) Restore(ctx context.Context) (bool, error) {
	if h.repo == nil || h.store.Loaded() {
		return false, nil
	}

	snap, err := h.repo.Latest(ctx)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("refresh_document: restore: %w", err)
	}

	h.store.Swap(snap)
	h.logger.Info("document snapshot restored",
		"version", snap.Version,
		"fingerprint", snap.Fingerprint,
		"groups", snap.Index.GroupCount(),
	)
	return true, nil
}

// Handle выполняет обновление. Если документ не изменился, возвращает
// shared.ErrDocumentUnchanged.
func (h *RefreshDocumentHandler) Handle(ctx context.Context, cmd RefreshDocumentCommand) (*RefreshDocumentResult, error) {
	start := h.now()

	if h.locker != nil {
		release, err := h.locker.Acquire(ctx, refreshLockResource)
		if err != nil {
			return nil, fmt.Errorf("refresh_document: acquire lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				h.logger.Warn("failed to release refresh lock", "error", err)
			}
		}()
	}

	src, err := h.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh_document: %w", err)
	}

	previous, _ := h.store.Current()
	if previous != nil && previous.Fingerprint == src.Fingerprint && !cmd.Force {
		h.logger.Debug("document unchanged", "fingerprint", src.Fingerprint, "reason", cmd.Reason)
		return nil, shared.ErrDocumentUnchanged
	}

	if err := h.source.Archive(ctx, src); err != nil {
		// Архив нужен только для диагностики; его сбой не мешает обновлению.
		h.logger.Warn("failed to archive document", "error", err)
	}

	extracted, err := h.source.Extract(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("refresh_document: %w", err)
	}

	next, err := document.NewSnapshot(previous.NextVersion(), src.Fingerprint, src.SourceURL, extracted.PageCount, extracted.Text, src.FetchedAt)
	if err != nil {
		return nil, fmt.Errorf("refresh_document: %w", err)
	}

	if h.repo != nil {
		if err := h.repo.Save(ctx, next); err != nil {
			return nil, fmt.Errorf("refresh_document: save snapshot: %w", err)
		}
	}

	h.store.Swap(next)

	h.logger.Info("document snapshot installed",
		"version", next.Version,
		"fingerprint", next.Fingerprint,
		"pages", next.PageCount,
		"units", next.Index.Len(),
		"groups", next.Index.GroupCount(),
		"reason", cmd.Reason,
	)

	result := &RefreshDocumentResult{
		Snapshot: next,
		Previous: previous,
	}

	if h.purger != nil {
		if n, err := h.purger.Purge(ctx, next.Fingerprint); err != nil {
			h.logger.Warn("failed to purge schedule cache", "error", err)
		} else if n > 0 {
			h.logger.Debug("schedule cache purged", "keys", n)
		}
	}

	// Первая загрузка и пересборка того же документа не считаются обновлением.
	changed := previous != nil && previous.Fingerprint != next.Fingerprint
	if changed && h.notifier != nil {
		notification, err := h.notifier.Handle(ctx, NotifySubscribersCommand{
			Previous: previous,
			Current:  next,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("failed to notify subscribers", "error", err)
		}
		result.Notification = notification
	}

	result.Duration = h.now().Sub(start)
	return result, nil
}
