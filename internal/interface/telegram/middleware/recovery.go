package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// A panicking handler must not take the update loop down with it. The chat
// gets a short apology and the log gets the stack.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	EnableStackTrace bool

	// UserErrorMessage is sent to the chat after a panic.
	UserErrorMessage string

	// FullStacks is how many stacks are logged before falling back to one per
	// minute; a crash loop would otherwise flood the log.
	FullStacks int

	// OnPanic observes every recovered panic.
	OnPanic func(ctx context.Context, info *PanicInfo)

	Logger *slog.Logger
}

// DefaultRecoveryConfig returns sensible defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace: true,
		UserErrorMessage: "😔 Что-то пошло не так. Попробуйте ещё раз через несколько минут.",
		FullStacks:       20,
	}
}

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Error      error
	PanicValue any
	StackTrace string
	ChatID     int64
	Route      string
	Timestamp  time.Time
}

// RecoveryResult is the outcome of a guarded handler call.
type RecoveryResult struct {
	Recovered   bool
	PanicInfo   *PanicInfo
	UserMessage string
}

// RecoveryMiddleware runs handlers with panic recovery.
type RecoveryMiddleware struct {
	config RecoveryConfig
	stacks *rate.Sometimes
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(config RecoveryConfig) *RecoveryMiddleware {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.UserErrorMessage == "" {
		config.UserErrorMessage = DefaultRecoveryConfig().UserErrorMessage
	}
	return &RecoveryMiddleware{
		config: config,
		stacks: &rate.Sometimes{First: max(config.FullStacks, 1), Interval: time.Minute},
	}
}

// Run calls handler. A panic becomes a Recovered result with a nil error;
// an error returned by handler is passed through.
func (m *RecoveryMiddleware) Run(ctx context.Context, chatID int64, route string, handler func() error) (result *RecoveryResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			result, err = m.recovered(ctx, v, chatID, route), nil
		}
	}()
	return &RecoveryResult{}, handler()
}

func (m *RecoveryMiddleware) recovered(ctx context.Context, v any, chatID int64, route string) *RecoveryResult {
	info := &PanicInfo{
		Error:      panicError(v),
		PanicValue: v,
		ChatID:     chatID,
		Route:      route,
		Timestamp:  time.Now(),
	}

	attrs := []any{"chat_id", chatID, "route", route, "panic", info.Error}
	if m.config.EnableStackTrace {
		m.stacks.Do(func() {
			info.StackTrace = string(debug.Stack())
			attrs = append(attrs, "stack", info.StackTrace)
		})
	}
	m.config.Logger.ErrorContext(ctx, "telegram handler panicked", attrs...)

	if m.config.OnPanic != nil {
		m.config.OnPanic(ctx, info)
	}
	return &RecoveryResult{Recovered: true, PanicInfo: info, UserMessage: m.config.UserErrorMessage}
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	if s, ok := v.(string); ok {
		return fmt.Errorf("%s", s)
	}
	return fmt.Errorf("panic: %v", v)
}
