package telegram

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/handler"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Logger *slog.Logger

	// Debug logs every routing decision.
	Debug bool
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes commands, callback data and plain text to handler funcs.
// ══════════════════════════════════════════════════════════════════════════════

// Router routes Telegram updates to handlers.
type Router struct {
	config RouterConfig
	logger *slog.Logger

	mu        sync.RWMutex
	commands  map[string]handler.Func
	callbacks map[string]handler.Func
	text      handler.Func
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Router{
		config:    config,
		logger:    config.Logger,
		commands:  make(map[string]handler.Func),
		callbacks: make(map[string]handler.Func),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCommand registers a handler for /command (name without the slash).
func (r *Router) RegisterCommand(command string, fn handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(command)] = fn
}

// RegisterCallbackPrefix registers a handler for "<prefix>|..." callback data.
func (r *Router) RegisterCallbackPrefix(prefix string, fn handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[prefix] = fn
}

// SetTextHandler registers the handler for plain (non-command) messages.
func (r *Router) SetTextHandler(fn handler.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// HandleCommand routes a command. Unknown commands get a hint.
func (r *Router) HandleCommand(ctx context.Context, command string, req handler.Request) (*handler.Response, error) {
	r.mu.RLock()
	fn, ok := r.commands[strings.ToLower(command)]
	r.mu.RUnlock()

	if !ok {
		if r.config.Debug {
			r.logger.Debug("no handler for command", "command", command)
		}
		return &handler.Response{Text: presenter.UnknownCommandText}, nil
	}
	return fn(ctx, req)
}

// HandleCallback routes callback data by its prefix; the handler receives the
// payload in req.Args.
func (r *Router) HandleCallback(ctx context.Context, data string, req handler.Request) (*handler.Response, error) {
	prefix, payload := presenter.ParseCallbackData(data)

	r.mu.RLock()
	fn, ok := r.callbacks[prefix]
	r.mu.RUnlock()

	if !ok {
		if r.config.Debug {
			r.logger.Debug("no handler for callback", "data", data)
		}
		return &handler.Response{Notice: presenter.UnknownCallbackText}, nil
	}

	req.Args = payload
	return fn(ctx, req)
}

// HandleText routes a plain message.
func (r *Router) HandleText(ctx context.Context, req handler.Request) (*handler.Response, error) {
	r.mu.RLock()
	fn := r.text
	r.mu.RUnlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, req)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTE INFO
// ══════════════════════════════════════════════════════════════════════════════

// Commands returns the registered commands, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.commands))
	for c := range r.commands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CallbackPrefixes returns the registered callback prefixes, sorted.
func (r *Router) CallbackPrefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.callbacks))
	for p := range r.callbacks {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
