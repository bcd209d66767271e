// Package http implements the HTTP side of the schedule bot: health probes,
// a small read-only API over the current timetable and the Telegram webhook.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/application/query"
	"github.com/kemsu-schedule/schedule-bot/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes caps webhook request bodies.
	MaxBodyBytes int64

	// CatalogMaxAge is the Cache-Control max-age of /v1/groups.
	CatalogMaxAge time.Duration

	// WebhookPath and WebhookSecret are used in webhook mode only.
	WebhookPath   string
	WebhookSecret string

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    time.Minute,
		MaxHeaderBytes: 64 << 10,
		MaxBodyBytes:   1 << 20,
		CatalogMaxAge:  time.Minute,
		WebhookPath:    "/telegram/webhook",
		Version:        "dev",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.WebhookPath == "" {
		c.WebhookPath = d.WebhookPath
	}
	return c
}

// Dependencies contains everything the HTTP handlers need.
type Dependencies struct {
	Catalog  *query.CatalogHandler
	Schedule *query.GetScheduleHandler
	Status   *query.GetStatusHandler

	// Documents versions GET responses with an ETag; optional.
	Documents query.SnapshotProvider

	// HealthChecker backs /readyz.
	HealthChecker handlers.HealthChecker

	// Webhook receives Telegram updates; nil disables the endpoint.
	Webhook handlers.UpdateDispatcher

	// BotStats reports bot counters on /v1/status; optional.
	BotStats func() any

	// Jobs reports background jobs on /v1/status; optional.
	Jobs func() any

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server serves the probes, the read-only API and the webhook.
type Server struct {
	config     Config
	deps       Dependencies
	logger     *slog.Logger
	router     *http.ServeMux
	httpServer *http.Server

	// startedAt is the unix nano time Run began listening, 0 when stopped.
	startedAt atomic.Int64
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Catalog == nil || deps.Schedule == nil || deps.Status == nil {
		return nil, errors.New("http: catalog, schedule and status queries are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	config = config.withDefaults()
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker(config.Version)
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
		router: http.NewServeMux(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(deps.Logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.Handle("GET /healthz", handlers.NoStore(http.HandlerFunc(s.handleHealth)))
	s.router.Handle("GET /readyz", handlers.NoStore(http.HandlerFunc(s.handleReady)))
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	versioned := handlers.ETag(s.documentVersion)
	s.router.Handle("GET /v1/groups", handlers.Wrap(http.HandlerFunc(s.handleGroups),
		handlers.Cacheable(s.config.CatalogMaxAge), versioned))
	s.router.Handle("GET /v1/schedule/{group}", versioned(http.HandlerFunc(s.handleSchedule)))
	s.router.Handle("GET /v1/status", handlers.NoStore(http.HandlerFunc(s.handleStatus)))

	if s.deps.Webhook != nil {
		webhook := handlers.NewTelegramWebhook(s.deps.Webhook, s.config.WebhookSecret, s.logger)
		s.router.Handle("POST "+s.config.WebhookPath, handlers.LimitBody(s.config.MaxBodyBytes)(webhook))
	}
}

// Handler returns the router behind the common middleware.
func (s *Server) Handler() http.Handler {
	return handlers.Wrap(s.router,
		handlers.WithRequestID,
		handlers.AccessLog(s.logger, "/healthz", "/readyz"),
		handlers.Recover(s.logger, func(w http.ResponseWriter, _ *http.Request) {
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		}),
		handlers.Hardened,
	)
}

// documentVersion tags responses that depend only on the current snapshot.
func (s *Server) documentVersion(*http.Request) (string, bool) {
	if s.deps.Documents == nil {
		return "", false
	}
	snap, err := s.deps.Documents.Current()
	if err != nil {
		return "", false
	}
	fp := snap.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	return strconv.FormatInt(snap.Version, 10) + "-" + fp, true
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Run serves until ctx is cancelled, then drains within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}

	s.startedAt.Store(time.Now().UnixNano())
	defer s.startedAt.Store(0)
	s.logger.Info("http server listening", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.httpServer.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http server draining", "timeout", shutdownTimeout)
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// IsRunning reports whether Run is serving.
func (s *Server) IsRunning() bool {
	return s.startedAt.Load() != 0
}

// Uptime is the time since Run started listening, 0 when stopped.
func (s *Server) Uptime() time.Duration {
	started := s.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}
