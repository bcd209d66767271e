package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kemsu-schedule/schedule-bot/config"
	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/source"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/scheduler"
	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/kemsu-schedule/schedule-bot/internal/interface/http"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/http/handlers"
	tgbot "github.com/kemsu-schedule/schedule-bot/internal/interface/telegram"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/handler"
	"github.com/kemsu-schedule/schedule-bot/pkg/timeutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the HTTP server and the document refresh",
	Long: `Run the Telegram bot together with the background document refresh.

On start the last stored snapshot is restored, so the bot answers before
the first download finishes. The HTTP server exposes:
  - /healthz            - liveness probe
  - /readyz             - readiness (document loaded, database and Redis reachable)
  - /v1/groups          - institutes and groups of the current document
  - /v1/schedule/{group}- the rendered schedule of one group
  - /v1/status          - document and bot counters
  - the Telegram webhook, when TELEGRAM_MODE=webhook`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, log, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), mgr.Get(), log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting schedule bot",
		"version", cfg.App.Version,
		"mode", cfg.Telegram.Mode,
		"source", cfg.Source.URL,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЧАСОВОЙ ПОЯС
	// ─────────────────────────────────────────────────────────────────────────
	if err := timeutil.SetLocation(cfg.App.Timezone); err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	a.restore(ctx)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	catalog, schedule, status, profile := a.queries()

	registerChat := command.NewRegisterChatHandler(a.subscribers)
	selectGroup := command.NewSelectGroupHandler(a.subscribers, a.store)
	requestManual := command.NewRequestManualGroupHandler(a.subscribers)
	setSubscription := command.NewSetSubscriptionHandler(a.subscribers)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	botCfg := tgbot.DefaultBotConfig()
	botCfg.Mode = cfg.Telegram.Mode
	botCfg.WebhookURL = cfg.Telegram.WebhookURL
	botCfg.WebhookSecret = cfg.Telegram.WebhookSecret
	botCfg.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrent
	botCfg.HandlerTimeout = cfg.Telegram.HandlerTimeout
	botCfg.RateLimit.RequestsPerMinute = cfg.Telegram.RateLimitPerMinute
	botCfg.RateLimit.BurstSize = cfg.Telegram.RateLimitBurst
	botCfg.RateLimit.BanDuration = cfg.Telegram.RateLimitBan
	botCfg.Recovery.EnableStackTrace = cfg.App.Debug || !cfg.IsProduction()
	botCfg.Debug = cfg.App.Debug
	botCfg.Logger = log

	bot, err := tgbot.NewBot(botCfg, a.telegram, tgbot.BotDependencies{
		Start:    handler.NewStartHandler(registerChat, catalog),
		Group:    handler.NewGroupHandler(selectGroup, requestManual, profile),
		Schedule: handler.NewScheduleHandler(schedule),
		Profile:  handler.NewProfileHandler(profile, setSubscription),
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	rg := newRunGroup(ctx, log)
	defer rg.cancel()
	gctx := rg.ctx

	rg.Go(func() error {
		return bot.Run(gctx)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОБНОВЛЕНИЕ ДОКУМЕНТА
	// ─────────────────────────────────────────────────────────────────────────
	var jobsInfo func() any
	if cfg.Scheduler.Enabled {
		sched, job, err := newRefreshScheduler(cfg, a, log)
		if err != nil {
			return rg.abort(err)
		}
		if err := sched.Start(gctx); err != nil {
			return rg.abort(fmt.Errorf("failed to start scheduler: %w", err))
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn("failed to stop scheduler", "error", err)
			}
		}()
		jobsInfo = func() any { return sched.ListJobs() }

		if cfg.Source.Watch {
			watcher, err := newSourceWatcher(cfg, a, log, func() {
				if err := sched.Trigger(job.Name()); err != nil {
					log.Warn("failed to trigger refresh", "error", err)
				}
			})
			if err != nil {
				return rg.abort(err)
			}
			if watcher != nil {
				rg.Go(func() error {
					return watcher.Run(gctx)
				})
			}
		}
	} else {
		log.Warn("scheduler disabled, the document is only restored from the database")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.HTTP.Enabled {
		checker := handlers.NewCompositeHealthChecker(cfg.App.Version)
		checker.AddCheck("document", handlers.NewDocumentCheck(a.store))
		checker.AddCheck("database", handlers.NewPingCheck(a.db))
		if a.cache != nil {
			checker.AddCheck("redis", handlers.NewPingCheck(a.cache))
		}

		httpCfg := httpserver.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		httpCfg.WebhookPath = cfg.HTTP.WebhookPath
		httpCfg.WebhookSecret = cfg.Telegram.WebhookSecret
		httpCfg.Version = cfg.App.Version

		deps := httpserver.Dependencies{
			Catalog:       catalog,
			Schedule:      schedule,
			Status:        status,
			Documents:     a.store,
			HealthChecker: checker,
			BotStats:      func() any { return bot.Stats() },
			Jobs:          jobsInfo,
			Logger:        log,
		}
		if cfg.Telegram.Mode == config.TelegramModeWebhook {
			deps.Webhook = bot
		}

		server, err := httpserver.NewServer(httpCfg, deps)
		if err != nil {
			return rg.abort(fmt.Errorf("failed to create HTTP server: %w", err))
		}
		rg.Go(func() error {
			return server.Run(gctx, cfg.App.ShutdownTimeout)
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ОЖИДАНИЕ ЗАВЕРШЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	err = rg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("schedule bot stopped with error", "error", err)
		return err
	}

	log.Info("schedule bot stopped")
	return nil
}

// newRefreshScheduler регистрирует задачу обновления документа. Первый запуск
// происходит сразу после старта.
func newRefreshScheduler(cfg *config.Config, a *app, log *slog.Logger) (*scheduler.Scheduler, *jobs.RefreshDocumentJob, error) {
	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.RefreshInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid refresh interval: %w", err)
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: timeutil.Location(),
	})

	job := jobs.NewRefreshDocumentJob(a.refresh, log, jobs.RefreshDocumentConfig{
		Timeout: cfg.Scheduler.RefreshTimeout,
		Reason:  "scheduler",
	})
	if err := sched.Register(job, schedule, scheduler.RunImmediately()); err != nil {
		return nil, nil, fmt.Errorf("failed to register refresh job: %w", err)
	}

	log.Info("document refresh scheduled", "schedule", schedule.String())
	return sched, job, nil
}

// newSourceWatcher следит за локальным файлом документа. Для http(s)-источников
// возвращает nil.
func newSourceWatcher(cfg *config.Config, a *app, log *slog.Logger, onChange func()) (*source.Watcher, error) {
	path := a.fetcher.LocalPath()
	if path == "" {
		log.Warn("source watch ignored for a remote document", "source", cfg.Source.URL)
		return nil, nil
	}

	watcher, err := source.NewWatcher(path, cfg.Source.WatchDebounce, onChange, log)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	log.Info("watching source file", "path", path)
	return watcher, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN GROUP
// ══════════════════════════════════════════════════════════════════════════════

// runGroup - errgroup с собственной отменой: если запуск сорвался после того,
// как часть горутин уже работает, abort останавливает их и дожидается выхода.
type runGroup struct {
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func newRunGroup(parent context.Context, log *slog.Logger) *runGroup {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	return &runGroup{g: g, ctx: gctx, cancel: cancel, log: log}
}

func (r *runGroup) Go(fn func() error) { r.g.Go(fn) }

func (r *runGroup) Wait() error {
	err := r.g.Wait()
	r.cancel()
	return err
}

// abort отменяет группу, ждёт горутины и возвращает err.
func (r *runGroup) abort(err error) error {
	r.cancel()
	if werr := r.g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		r.log.Warn("shutdown after failed start", "error", werr)
	}
	return err
}
