// Package scheduler runs background jobs on interval or cron schedules.
// The document refresh job is registered here by cmd/bot.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Description() string

	// Run does one pass of the work. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule computes run times.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

// JobResult describes one run.
type JobResult struct {
	JobName     string        `json:"job"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
	Success     bool          `json:"success"`
	Skipped     bool          `json:"skipped,omitempty"`
	Error       error         `json:"-"`
}

var (
	ErrNilJob                  = errors.New("scheduler: nil job")
	ErrNilSchedule             = errors.New("scheduler: nil schedule")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone in which schedules are evaluated (default UTC).
	Timezone *time.Location
}

// DefaultSchedulerConfig returns the zero-setup configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Logger: slog.Default(), Timezone: time.UTC}
}

// Scheduler drives every registered job from its own timer goroutine. A job
// never overlaps itself: scheduled, triggered and manual runs all claim the
// job first and are skipped while it is busy.
type Scheduler struct {
	log *slog.Logger
	loc *time.Location

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type entry struct {
	job       Job
	schedule  Schedule
	immediate bool

	// guarded by Scheduler.mu
	busy     bool
	next     time.Time
	runs     int64
	failures int64
	last     *JobResult
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	return &Scheduler{
		log:     config.Logger,
		loc:     config.Timezone,
		entries: make(map[string]*entry),
	}
}

// RegisterOption tunes a registration.
type RegisterOption func(*entry)

// RunImmediately makes the first run start as soon as the scheduler does.
func RunImmediately() RegisterOption {
	return func(e *entry) { e.immediate = true }
}

// Register adds job. Jobs registered on a running scheduler start right away.
func (s *Scheduler) Register(job Job, schedule Schedule, opts ...RegisterOption) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	e := &entry{job: job, schedule: schedule}
	for _, opt := range opts {
		opt(e)
	}
	e.next = s.firstRun(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[job.Name()]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.Name())
	}
	s.entries[job.Name()] = e
	if s.ctx != nil {
		s.spawnLocked(e)
	}

	s.log.Info("job registered", "job", job.Name(), "schedule", schedule.String(), "description", job.Description())
	return nil
}

func (s *Scheduler) firstRun(e *entry) time.Time {
	now := time.Now().In(s.loc)
	if e.immediate {
		return now
	}
	return e.schedule.Next(now)
}

// Start launches the job loops; they stop when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		e.next = s.firstRun(e)
		s.spawnLocked(e)
	}
	s.log.Info("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop cancels the loops and in-flight runs and waits for them.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *Scheduler) spawnLocked(e *entry) {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, e)
	}()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	for {
		s.mu.Lock()
		wait := time.Until(e.next)
		s.mu.Unlock()

		timer := time.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.claim(e) {
			s.run(ctx, e, false)
		} else {
			s.log.Debug("job still running, scheduled run skipped", "job", e.job.Name())
		}

		s.mu.Lock()
		e.next = e.schedule.Next(time.Now().In(s.loc))
		s.mu.Unlock()
	}
}

func (s *Scheduler) claim(e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.busy {
		return false
	}
	e.busy = true
	return true
}

// run executes a claimed job and releases it.
func (s *Scheduler) run(ctx context.Context, e *entry, manual bool) *JobResult {
	res := &JobResult{JobName: e.job.Name(), StartedAt: time.Now()}
	res.Error = protect(ctx, e.job)
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	res.Success = res.Error == nil

	s.mu.Lock()
	e.busy = false
	e.runs++
	if res.Error != nil {
		e.failures++
	}
	e.last = res
	s.mu.Unlock()

	attrs := []any{"job", res.JobName, "manual", manual, "duration", res.Duration.Round(time.Millisecond).String()}
	if res.Error != nil {
		s.log.Error("job failed", append(attrs, "error", res.Error)...)
	} else {
		s.log.Info("job completed", attrs...)
	}
	return res
}

func protect(ctx context.Context, job Job) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), v)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL RUNS
// ══════════════════════════════════════════════════════════════════════════════

// RunNow runs the job on the caller's goroutine and context. A busy job is
// not run; the result then has Skipped set.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if !s.claim(e) {
		return &JobResult{JobName: name, Skipped: true}, nil
	}
	res := s.run(ctx, e, true)
	return res, res.Error
}

// Trigger runs the job in the background on the scheduler's context. It does
// nothing while the job is busy.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ErrSchedulerNotRunning
	}
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if e.busy {
		s.log.Debug("job still running, trigger skipped", "job", name)
		return nil
	}
	e.busy = true

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, e, true)
	}()
	return nil
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return e, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastResult  *JobResult `json:"last_result,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// ListJobs returns the registered jobs ordered by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		info := JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			Running:     e.busy,
			NextRun:     e.next,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.last,
		}
		if e.last != nil && e.last.Error != nil {
			info.LastError = e.last.Error.Error()
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
