package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kemsu-schedule/schedule-bot/config"
	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/document"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/source"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/persistence/postgres"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/persistence/redis"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// INFRASTRUCTURE
// ══════════════════════════════════════════════════════════════════════════════

// app держит общие зависимости процесса.
type app struct {
	cfg *config.Config
	log *slog.Logger

	db    *postgres.Connection
	cache *redis.Cache // nil, если Redis выключен

	store       *document.Store
	snapshots   *postgres.SnapshotRepository
	subscribers *postgres.SubscriberRepository
	renderCache *redis.ScheduleCache // nil, если Redis выключен

	fetcher  *source.HTTPFetcher
	telegram *telegram.Client

	notify  *command.NotifySubscribersHandler
	refresh *command.RefreshDocumentHandler
}

// openDatabase подключается к PostgreSQL.
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = cfg.Database.MaxConns
	opts.MinConns = cfg.Database.MinConns
	opts.MaxConnLifetime = cfg.Database.MaxConnLifetime
	opts.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	db, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("connected to PostgreSQL", "max_conns", opts.MaxConns)
	return db, nil
}

// newApp поднимает хранилища, источник документа и клиент Bot API.
// Миграции применяются здесь же: бот не стартует на старой схеме.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, store: document.NewStore()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	a.db, err = openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	applied, err := postgres.NewMigrator(a.db).Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		log.Info("database migrations applied", "count", applied)
	}

	a.snapshots = postgres.NewSnapshotRepository(a.db, cfg.Database.KeepSnapshots)
	a.subscribers = postgres.NewSubscriberRepository(a.db)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Enabled {
		a.cache, err = redis.NewCacheFromURL(ctx, cfg.Redis.URL, redis.Options{Namespace: cfg.Redis.KeyPrefix})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.renderCache = redis.NewScheduleCache(a.cache, cfg.Redis.ScheduleTTL, log)
		log.Info("connected to Redis")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ИСТОЧНИК ДОКУМЕНТА
	// ─────────────────────────────────────────────────────────────────────────
	fetcherCfg := source.DefaultFetcherConfig(cfg.Source.URL)
	fetcherCfg.Timeout = cfg.Source.Timeout
	fetcherCfg.MaxAttempts = cfg.Source.MaxAttempts
	fetcherCfg.MaxBytes = cfg.Source.MaxBytes
	fetcherCfg.UserAgent = cfg.App.Name + "/" + cfg.App.Version
	fetcherCfg.Logger = log
	a.fetcher = source.NewHTTPFetcher(fetcherCfg)

	docSource := service.NewDocumentSourceAdapter(
		a.fetcher,
		source.NewPDFExtractor(log),
		source.NewArchive(cfg.Source.ArchivePath),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TELEGRAM BOT API
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := telegram.DefaultClientConfig(cfg.Telegram.BotToken)
	if cfg.Telegram.APIURL != "" {
		clientCfg.BaseURL = cfg.Telegram.APIURL
	}
	clientCfg.PollingTimeout = cfg.Telegram.PollingTimeout
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug
	a.telegram = telegram.NewClient(clientCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОБНОВЛЕНИЕ ДОКУМЕНТА И РАССЫЛКА
	// ─────────────────────────────────────────────────────────────────────────
	a.notify = command.NewNotifySubscribersHandler(
		a.subscribers,
		service.NewTelegramNotifier(a.telegram),
		command.NotifySubscribersConfig{
			Workers:       cfg.Scheduler.NotifyWorkers,
			MaxBlockLines: cfg.Source.MaxBlockLines,
			Logger:        log,
		},
	)

	refreshCfg := command.RefreshDocumentHandlerConfig{
		Source:   docSource,
		Store:    a.store,
		Repo:     a.snapshots,
		Notifier: a.notify,
		Logger:   log,
	}
	// Интерфейсы получают значения только при включённом Redis, чтобы не
	// передать typed nil.
	if a.cache != nil {
		refreshCfg.Locker = redis.NewLocker(a.cache, cfg.Redis.LockTTL)
		refreshCfg.Purger = a.renderCache
	}
	a.refresh = command.NewRefreshDocumentHandler(refreshCfg)

	return a, nil
}

// queries собирает обработчики чтения.
func (a *app) queries() (*query.CatalogHandler, *query.GetScheduleHandler, *query.GetStatusHandler, *query.GetProfileHandler) {
	var renderCache query.RenderCache
	if a.renderCache != nil {
		renderCache = a.renderCache
	}

	return query.NewCatalogHandler(a.store),
		query.NewGetScheduleHandler(a.store, a.subscribers, renderCache, query.GetScheduleConfig{
			MaxBlockLines: a.cfg.Source.MaxBlockLines,
		}),
		query.NewGetStatusHandler(a.store, a.subscribers),
		query.NewGetProfileHandler(a.subscribers, a.store)
}

// restore устанавливает последний сохранённый снимок, чтобы бот отвечал
// ещё до первой загрузки документа.
func (a *app) restore(ctx context.Context) {
	restored, err := a.refresh.Restore(ctx)
	switch {
	case err != nil:
		a.log.Warn("failed to restore document snapshot", "error", err)
	case !restored:
		a.log.Info("no stored document snapshot, waiting for the first download")
	}
}

func (a *app) close() {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("failed to close connections", "error", err)
	}
}
