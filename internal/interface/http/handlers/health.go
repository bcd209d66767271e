package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// READINESS
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker aggregates the readiness checks behind /readyz.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
}

// HealthCheckFunc returns nil when the dependency is usable.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the /readyz body.
type HealthStatus struct {
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type namedCheck struct {
	name string
	fn   HealthCheckFunc
}

// CompositeHealthChecker runs its checks concurrently, each under its own
// timeout. Failures are reported in registration order.
type CompositeHealthChecker struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []namedCheck
}

// NewCompositeHealthChecker creates an empty checker; with no checks the
// service is ready.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		version: version,
		started: time.Now(),
		timeout: 3 * time.Second,
	}
}

// SetTimeout bounds each check.
func (c *CompositeHealthChecker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// AddCheck registers check under name, replacing an earlier one of the same name.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == name {
			c.checks[i].fn = check
			return
		}
	}
	c.checks = append(c.checks, namedCheck{name: name, fn: check})
}

// Check runs every check and folds the results into one status.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := append([]namedCheck(nil), c.checks...)
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, nc := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, nc.fn, timeout)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Ready:     true,
		Message:   "ready",
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		return status
	}

	status.Checks = make(map[string]CheckResult, len(checks))
	var failed []string
	for i, nc := range checks {
		status.Checks[nc.name] = results[i]
		if !results[i].Healthy {
			failed = append(failed, nc.name)
		}
	}
	if len(failed) > 0 {
		status.Ready = false
		status.Message = "not ready: " + strings.Join(failed, ", ")
	}
	return status
}

func runCheck(ctx context.Context, fn HealthCheckFunc, timeout time.Duration) (res CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			res = CheckResult{Message: fmt.Sprintf("check panicked: %v", v)}
		}
		res.Duration = time.Since(start).Round(time.Millisecond).String()
	}()

	if err := fn(ctx); err != nil {
		return CheckResult{Message: err.Error()}
	}
	return CheckResult{Healthy: true, Message: "ok"}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is implemented by the database connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck adapts a Pinger.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// DocumentState reports whether a timetable snapshot is loaded.
type DocumentState interface {
	Loaded() bool
}

// NewDocumentCheck fails until the first snapshot is loaded.
func NewDocumentCheck(d DocumentState) HealthCheckFunc {
	return func(context.Context) error {
		if d.Loaded() {
			return nil
		}
		return shared.ErrDocumentNotLoaded
	}
}
