// Package jobs contains the scheduled jobs of the schedule bot.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/application/command"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH DOCUMENT JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshDocumentJobName is the scheduler name of the job.
const RefreshDocumentJobName = "refresh_document"

// DocumentRefresher runs one refresh.
type DocumentRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshDocumentCommand) (*command.RefreshDocumentResult, error)
}

// RefreshDocumentConfig contains configuration for the job.
type RefreshDocumentConfig struct {
	// Timeout is the maximum duration of one refresh, notifications included.
	Timeout time.Duration

	// Reason is logged with every run ("scheduler" by default).
	Reason string
}

// DefaultRefreshDocumentConfig returns sensible defaults.
func DefaultRefreshDocumentConfig() RefreshDocumentConfig {
	return RefreshDocumentConfig{
		Timeout: 10 * time.Minute,
		Reason:  "scheduler",
	}
}

// RefreshStats describes the last run.
type RefreshStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Changed   bool
	Version   int64
	Notified  int
	Err       error
}

// RefreshDocumentJob checks the published document and installs a new snapshot
// when it changed.
type RefreshDocumentJob struct {
	refresher DocumentRefresher
	logger    *slog.Logger
	config    RefreshDocumentConfig

	lastStats atomic.Pointer[RefreshStats]
}

// NewRefreshDocumentJob creates the job.
func NewRefreshDocumentJob(refresher DocumentRefresher, logger *slog.Logger, config RefreshDocumentConfig) *RefreshDocumentJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRefreshDocumentConfig().Timeout
	}
	if config.Reason == "" {
		config.Reason = "scheduler"
	}
	return &RefreshDocumentJob{
		refresher: refresher,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *RefreshDocumentJob) Name() string {
	return RefreshDocumentJobName
}

// Description returns a human-readable description.
func (j *RefreshDocumentJob) Description() string {
	return "Downloads the published timetable, rebuilds the group catalog on change and notifies subscribers"
}

// Run executes the job. An unchanged document is a successful run.
func (j *RefreshDocumentJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &RefreshStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	result, err := j.refresher.Handle(ctx, command.RefreshDocumentCommand{Reason: j.config.Reason})
	switch {
	case errors.Is(err, shared.ErrDocumentUnchanged):
		j.logger.Info("timetable document unchanged")
		return nil
	case err != nil:
		stats.Err = err
		return fmt.Errorf("refresh document: %w", err)
	}

	stats.Changed = true
	stats.Version = result.Snapshot.Version
	if result.Notification != nil {
		stats.Notified = result.Notification.Sent
	}
	return nil
}

// LastStats returns statistics of the last run, or nil before the first one.
func (j *RefreshDocumentJob) LastStats() *RefreshStats {
	return j.lastStats.Load()
}
