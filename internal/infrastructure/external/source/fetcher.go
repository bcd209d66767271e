// Package source loads the published timetable document: it downloads (or reads)
// the raw bytes, fingerprints them, turns PDF pages into plain text and keeps an
// on-disk copy of the latest version.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// FetcherConfig contains configuration for the document fetcher.
type FetcherConfig struct {
	// URL is an http(s) address, a file:// URL or a plain filesystem path.
	URL string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxAttempts is the total number of HTTP attempts, including the first.
	MaxAttempts uint

	// RetryDelay is the base delay of the exponential backoff between attempts.
	RetryDelay time.Duration

	// MaxBytes caps the document size.
	MaxBytes int64

	// UserAgent is sent with every request.
	UserAgent string

	Logger *slog.Logger
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig(rawURL string) FetcherConfig {
	return FetcherConfig{
		URL:         rawURL,
		Timeout:     60 * time.Second,
		MaxAttempts: 4,
		RetryDelay:  2 * time.Second,
		MaxBytes:    64 << 20,
		UserAgent:   "schedule-bot/1.0",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FETCHER
// ══════════════════════════════════════════════════════════════════════════════

// Document is one downloaded version of the source.
type Document struct {
	Data        []byte
	ContentType string
	SourceURL   string
	FetchedAt   time.Time
}

// HTTPFetcher downloads the document over HTTP with retries, or reads it from disk
// when the configured URL points to a local file.
type HTTPFetcher struct {
	config     FetcherConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates a new fetcher.
func NewHTTPFetcher(config FetcherConfig) *HTTPFetcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 1
	}
	return &HTTPFetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
}

// URL returns the configured source.
func (f *HTTPFetcher) URL() string {
	return f.config.URL
}

// LocalPath returns the filesystem path of a local source, or "" for remote ones.
func (f *HTTPFetcher) LocalPath() string {
	return localPath(f.config.URL)
}

// Fetch loads the current version of the document.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Document, error) {
	if path := f.LocalPath(); path != "" {
		return f.readFile(path)
	}

	var doc *Document
	err := retry.Do(
		func() error {
			d, err := f.fetchOnce(ctx)
			if err != nil {
				return err
			}
			doc = d
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.config.MaxAttempts),
		retry.Delay(f.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("document fetch failed, retrying",
				"url", f.config.URL,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
	if err != nil {
		return nil, shared.WrapError("document", "Fetch", shared.ErrServiceUnavailable,
			"document could not be fetched", err)
	}
	return doc, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		// Client errors will not fix themselves within one refresh.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Document{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		SourceURL:   f.config.URL,
		FetchedAt:   time.Now(),
	}, nil
}

func (f *HTTPFetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.config.MaxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, f.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.config.MaxBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("document exceeds %d bytes", f.config.MaxBytes))
	}
	return data, nil
}

func (f *HTTPFetcher) readFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, shared.WrapError("document", "Fetch", shared.ErrServiceUnavailable,
			"document could not be fetched", err)
	}
	if f.config.MaxBytes > 0 && int64(len(data)) > f.config.MaxBytes {
		return nil, shared.WrapError("document", "Fetch", shared.ErrServiceUnavailable,
			"document could not be fetched", errors.New("document too large"))
	}
	return &Document{
		Data:      data,
		SourceURL: f.config.URL,
		FetchedAt: time.Now(),
	}, nil
}

// localPath maps file:// URLs and bare paths to a filesystem path.
func localPath(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return strings.TrimPrefix(raw, "file://")
		}
		return u.Path
	}
	if strings.Contains(raw, "://") {
		return ""
	}
	return raw
}
