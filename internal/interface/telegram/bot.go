// Package telegram implements the Telegram interface of the schedule bot: it
// receives updates (long polling or webhook), routes them to handlers and
// sends the answers back.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/infrastructure/external/telegram"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/handler"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/middleware"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Update receiving modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Mode is ModePolling or ModeWebhook.
	Mode string

	// WebhookURL is the public URL Telegram posts updates to (webhook mode).
	WebhookURL string

	// WebhookSecret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string

	// MaxConcurrentUpdates limits how many chats are served at once. Updates of
	// one chat are always handled one after another.
	MaxConcurrentUpdates int

	// HandlerTimeout bounds the handling of one update.
	HandlerTimeout time.Duration

	// GracefulShutdownTimeout bounds the wait for in-flight updates on stop.
	GracefulShutdownTimeout time.Duration

	RateLimit middleware.RateLimitConfig
	Recovery  middleware.RecoveryConfig

	Debug  bool
	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Mode:                    ModePolling,
		MaxConcurrentUpdates:    16,
		HandlerTimeout:          30 * time.Second,
		GracefulShutdownTimeout: 15 * time.Second,
		RateLimit:               middleware.DefaultRateLimitConfig(),
		Recovery:                middleware.DefaultRecoveryConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Client is the part of the Bot API client the bot needs.
type Client interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	StartPolling(ctx context.Context, fn telegram.UpdateHandler) error
	SetWebhook(ctx context.Context, url, secret string) error
	DeleteWebhook(ctx context.Context) error
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, parseMode string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string, showAlert bool) error
}

// BotDependencies contains the handlers behind the bot commands.
type BotDependencies struct {
	Start    *handler.StartHandler
	Group    *handler.GroupHandler
	Schedule *handler.ScheduleHandler
	Profile  *handler.ProfileHandler
}

func (d BotDependencies) validate() error {
	var missing []string
	if d.Start == nil {
		missing = append(missing, "Start")
	}
	if d.Group == nil {
		missing = append(missing, "Group")
	}
	if d.Schedule == nil {
		missing = append(missing, "Schedule")
	}
	if d.Profile == nil {
		missing = append(missing, "Profile")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing bot dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the Telegram bot controller.
type Bot struct {
	config BotConfig
	client Client
	router *Router
	logger *slog.Logger

	rateLimiter *middleware.RateLimiter
	recovery    *middleware.RecoveryMiddleware

	// Per-chat FIFO queues; a chat present in the map has a drainer running.
	queueMu sync.Mutex
	queues  map[int64][]*telegram.Update

	updateSem chan struct{}
	wg        sync.WaitGroup
	running   atomic.Bool
	startedAt atomic.Int64

	stats botCounters
}

type botCounters struct {
	received    atomic.Int64
	handled     atomic.Int64
	errors      atomic.Int64
	panics      atomic.Int64
	rateLimited atomic.Int64
}

// BotStats is a snapshot of runtime counters.
type BotStats struct {
	StartedAt       time.Time `json:"started_at,omitzero"`
	UpdatesReceived int64     `json:"updates_received"`
	UpdatesHandled  int64     `json:"updates_handled"`
	Errors          int64     `json:"errors"`
	Panics          int64     `json:"panics"`
	RateLimited     int64     `json:"rate_limited"`
	Running         bool      `json:"running"`
}

// NewBot creates a new bot and registers the routes.
func NewBot(config BotConfig, client Client, deps BotDependencies) (*Bot, error) {
	if client == nil {
		return nil, errors.New("telegram client is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	defaults := DefaultBotConfig()
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	if config.Mode != ModePolling && config.Mode != ModeWebhook {
		return nil, fmt.Errorf("unknown bot mode: %s", config.Mode)
	}
	if config.Mode == ModeWebhook && config.WebhookURL == "" {
		return nil, errors.New("webhook URL is required for webhook mode")
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = defaults.MaxConcurrentUpdates
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = defaults.HandlerTimeout
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = defaults.GracefulShutdownTimeout
	}
	if config.Recovery.Logger == nil {
		config.Recovery.Logger = config.Logger
	}

	b := &Bot{
		config:      config,
		client:      client,
		router:      NewRouter(RouterConfig{Logger: config.Logger, Debug: config.Debug}),
		logger:      config.Logger,
		rateLimiter: middleware.NewRateLimiter(config.RateLimit),
		recovery:    middleware.NewRecoveryMiddleware(config.Recovery),
		queues:      make(map[int64][]*telegram.Update),
		updateSem:   make(chan struct{}, config.MaxConcurrentUpdates),
	}
	b.registerRoutes(deps)
	return b, nil
}

func (b *Bot) registerRoutes(deps BotDependencies) {
	r := b.router

	r.RegisterCommand("start", deps.Start.Start)
	r.RegisterCommand("schedule", deps.Schedule.Handle)
	r.RegisterCommand("mygroup", deps.Profile.MyGroup)
	r.RegisterCommand("subscribe", deps.Profile.Subscribe)
	r.RegisterCommand("unsubscribe", deps.Profile.Unsubscribe)
	r.RegisterCommand("help", handler.Help)

	r.RegisterCallbackPrefix(presenter.PrefixInstitute, deps.Start.Institute)
	r.RegisterCallbackPrefix(presenter.PrefixGroup, deps.Group.Callback)

	r.SetTextHandler(deps.Group.Text)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Run receives updates until ctx is cancelled, then waits for in-flight
// updates. In webhook mode it only registers the webhook; updates arrive via
// Dispatch from the HTTP server.
func (b *Bot) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("bot is already running")
	}
	defer b.running.Store(false)

	b.startedAt.Store(time.Now().UnixNano())

	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}
	b.logger.Info("telegram bot started",
		"username", me.Username,
		"mode", b.config.Mode,
		"max_concurrent", b.config.MaxConcurrentUpdates,
	)

	go b.rateLimiter.Run(ctx, 0)

	switch b.config.Mode {
	case ModeWebhook:
		if err := b.client.SetWebhook(ctx, b.config.WebhookURL, b.config.WebhookSecret); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		<-ctx.Done()
	default:
		// getUpdates is refused while a webhook is set.
		if err := b.client.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("failed to delete webhook: %w", err)
		}
		if err := b.client.StartPolling(ctx, b.Dispatch); err != nil {
			return fmt.Errorf("polling: %w", err)
		}
	}

	b.wait()
	b.logger.Info("telegram bot stopped")
	return nil
}

// IsRunning returns whether Run is active.
func (b *Bot) IsRunning() bool {
	return b.running.Load()
}

// WebhookSecret returns the expected secret token of webhook requests.
func (b *Bot) WebhookSecret() string {
	return b.config.WebhookSecret
}

func (b *Bot) wait() {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded, abandoning in-flight updates")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// Dispatch queues an update. Updates of one chat are handled in arrival order;
// different chats run concurrently up to MaxConcurrentUpdates. Dispatch blocks
// while all slots are busy, which throttles the poller.
func (b *Bot) Dispatch(ctx context.Context, update *telegram.Update) error {
	b.stats.received.Add(1)

	chatID := updateChatID(update)

	b.queueMu.Lock()
	if pending, busy := b.queues[chatID]; busy {
		b.queues[chatID] = append(pending, update)
		b.queueMu.Unlock()
		return nil
	}
	b.queues[chatID] = nil
	b.queueMu.Unlock()

	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		b.queueMu.Lock()
		delete(b.queues, chatID)
		b.queueMu.Unlock()
		return ctx.Err()
	}

	b.wg.Add(1)
	go b.drain(context.WithoutCancel(ctx), chatID, update)
	return nil
}

func (b *Bot) drain(ctx context.Context, chatID int64, update *telegram.Update) {
	defer b.wg.Done()
	defer func() { <-b.updateSem }()

	for u := update; u != nil; u = b.nextUpdate(chatID) {
		hctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
		if err := b.HandleUpdate(hctx, u); err != nil {
			b.logger.Error("failed to handle update", "update_id", u.UpdateID, "chat_id", chatID, "error", err)
		}
		cancel()
	}
}

func (b *Bot) nextUpdate(chatID int64) *telegram.Update {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	pending := b.queues[chatID]
	if len(pending) == 0 {
		delete(b.queues, chatID)
		return nil
	}
	b.queues[chatID] = pending[1:]
	return pending[0]
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		return nil
	}

	if err != nil {
		b.stats.errors.Add(1)
		return err
	}
	b.stats.handled.Add(1)
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat == nil || msg.Text == "" {
		return nil
	}
	if msg.From != nil && msg.From.IsBot {
		return nil
	}

	chatID := msg.Chat.ID
	req := handler.Request{
		ChatID:    chatID,
		MessageID: msg.MessageID,
		Private:   msg.Chat.Type == "private",
	}
	if msg.From != nil {
		req.UserID = msg.From.ID
	}

	command, args := parseCommand(msg)

	// Plain group chatter never warrants a rate-limit warning.
	if command != "" || req.Private {
		if limited := b.rateLimiter.Check(chatID); !limited.Allowed {
			b.stats.rateLimited.Add(1)
			if limited.Notify {
				return b.deliver(ctx, chatID, 0, &handler.Response{Text: limited.Message()})
			}
			return nil
		}
	}

	route := "text"
	req.Args = msg.Text
	call := func(ctx context.Context) (*handler.Response, error) {
		return b.router.HandleText(ctx, req)
	}
	if command != "" {
		route = "command:/" + command
		req.Args = args
		call = func(ctx context.Context) (*handler.Response, error) {
			return b.router.HandleCommand(ctx, command, req)
		}
	}

	resp, err := b.run(ctx, chatID, route, call)
	if err != nil {
		return err
	}
	return b.deliver(ctx, chatID, 0, resp)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, cq *telegram.CallbackQuery) error {
	var notice string
	defer func() {
		if err := b.client.AnswerCallbackQuery(ctx, cq.ID, notice, false); err != nil {
			b.logger.Debug("failed to answer callback query", "error", err)
		}
	}()

	if cq.Message == nil || cq.Message.Chat == nil {
		notice = presenter.UnknownCallbackText
		return nil
	}
	chatID := cq.Message.Chat.ID

	if limited := b.rateLimiter.Check(chatID); !limited.Allowed {
		b.stats.rateLimited.Add(1)
		notice = limited.Message()
		return nil
	}

	req := handler.Request{
		ChatID:    chatID,
		MessageID: cq.Message.MessageID,
		Private:   cq.Message.Chat.Type == "private",
	}
	if cq.From != nil {
		req.UserID = cq.From.ID
	}

	resp, err := b.run(ctx, chatID, "callback:"+cq.Data, func(ctx context.Context) (*handler.Response, error) {
		return b.router.HandleCallback(ctx, cq.Data, req)
	})
	if err != nil {
		return err
	}
	if resp != nil {
		notice = resp.Notice
	}
	return b.deliver(ctx, chatID, cq.Message.MessageID, resp)
}

// run executes a handler under panic recovery. Handler errors are logged and
// replaced with a generic reply, so the chat always hears back.
func (b *Bot) run(ctx context.Context, chatID int64, route string, call func(context.Context) (*handler.Response, error)) (*handler.Response, error) {
	var resp *handler.Response
	result, err := b.recovery.Run(ctx, chatID, route, func() error {
		var err error
		resp, err = call(ctx)
		return err
	})

	switch {
	case result != nil && result.Recovered:
		b.stats.panics.Add(1)
		return &handler.Response{Text: result.UserMessage}, nil
	case err != nil:
		b.stats.errors.Add(1)
		b.logger.Error("handler failed", "route", route, "chat_id", chatID, "error", err)
		return &handler.Response{Text: presenter.ErrorText}, nil
	}

	if b.config.Debug {
		b.logger.Debug("handled", "route", route, "chat_id", chatID)
	}
	return resp, nil
}

// deliver sends resp to the chat. Texts over the Telegram limit are split on
// line boundaries and the keyboard goes with the last part. An edit that
// fails for any reason other than "not modified" falls back to a new message.
func (b *Bot) deliver(ctx context.Context, chatID, messageID int64, resp *handler.Response) error {
	if resp == nil || resp.Text == "" {
		return nil
	}

	chunks := telegram.SplitMessage(resp.Text, telegram.MaxMessageLength)

	if resp.Edit && messageID != 0 && len(chunks) == 1 {
		_, err := b.client.EditMessageText(ctx, chatID, messageID, chunks[0], "", resp.Keyboard)
		if err == nil || telegram.IsMessageNotModified(err) {
			return nil
		}
		b.logger.Warn("edit failed, sending a new message", "chat_id", chatID, "error", err)
	}

	for i, chunk := range chunks {
		params := telegram.SendMessageParams{
			ChatID:            chatID,
			Text:              chunk,
			DisableWebPreview: true,
		}
		if i == len(chunks)-1 {
			params.ReplyMarkup = resp.Keyboard
		}
		if _, err := b.client.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// parseCommand returns the command (lowercase, without slash and @botname) and
// the rest of the text.
func parseCommand(msg *telegram.Message) (command, args string) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	command = telegram.ExtractCommand(msg)
	head, rest, _ := strings.Cut(text, " ")
	if command == "" {
		command = strings.TrimPrefix(head, "/")
		if at := strings.IndexByte(command, '@'); at >= 0 {
			command = command[:at]
		}
	}
	return strings.ToLower(command), strings.TrimSpace(rest)
}

func updateChatID(update *telegram.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// Stats returns current bot statistics.
func (b *Bot) Stats() BotStats {
	s := BotStats{
		UpdatesReceived: b.stats.received.Load(),
		UpdatesHandled:  b.stats.handled.Load(),
		Errors:          b.stats.errors.Load(),
		Panics:          b.stats.panics.Load(),
		RateLimited:     b.stats.rateLimited.Load(),
		Running:         b.IsRunning(),
	}
	if ns := b.startedAt.Load(); ns != 0 {
		s.StartedAt = time.Unix(0, ns)
	}
	return s
}

// Router returns the router.
func (b *Bot) Router() *Router {
	return b.router
}
