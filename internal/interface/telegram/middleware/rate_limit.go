// Package middleware contains Telegram bot middlewares for request processing.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER MIDDLEWARE
// Protects the bot from button mashing and scripted spam with a token bucket
// per chat (golang.org/x/time/rate). Chats that keep hitting the limit are muted for a while.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per chat.
	RequestsPerMinute int

	// BurstSize is the bucket capacity.
	BurstSize int

	// IdleTTL is how long an untouched bucket is kept before cleanup.
	IdleTTL time.Duration

	// BanDuration is how long a chat is muted after BanThreshold violations.
	BanDuration time.Duration

	// BanThreshold is the number of violations (within ViolationWindow) before a mute.
	BanThreshold int

	// ViolationWindow resets the violation counter when it passes without violations.
	ViolationWindow time.Duration

	// Whitelist contains chats exempt from limiting.
	Whitelist map[int64]bool

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         8,
		IdleTTL:           10 * time.Minute,
		BanDuration:       5 * time.Minute,
		BanThreshold:      5,
		ViolationWindow:   5 * time.Minute,
		Now:               time.Now,
	}
}

// RateLimitResult is the outcome of a check.
type RateLimitResult struct {
	Allowed bool

	// RetryAfter is how long the chat should wait.
	RetryAfter time.Duration

	// Banned is set while the chat is muted.
	Banned bool

	// Notify is true only for the first rejection in a row, so the chat gets
	// one warning instead of one per dropped update.
	Notify bool
}

// Message returns the warning shown to a limited chat.
func (r *RateLimitResult) Message() string {
	seconds := int(r.RetryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("⏳ Слишком много запросов. Подождите %d сек. и попробуйте снова.", seconds)
	}
	return fmt.Sprintf("⏳ Слишком много запросов. Подождите %d мин. и попробуйте снова.", (seconds+59)/60)
}

// RateLimiter keeps one token bucket per chat. The buckets are driven with
// explicit timestamps from config.Now, so tests can move the clock.
type RateLimiter struct {
	config RateLimitConfig
	limit  rate.Limit

	mu    sync.Mutex
	chats map[int64]*chatState
}

type chatState struct {
	bucket       *rate.Limiter
	lastSeen     time.Time
	violations   int
	lastViolated time.Time
	bannedUntil  time.Time
	warned       bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if config.ViolationWindow <= 0 {
		config.ViolationWindow = defaults.ViolationWindow
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config: config,
		limit:  rate.Limit(float64(config.RequestsPerMinute) / 60),
		chats:  make(map[int64]*chatState),
	}
}

// Check takes a token for chatID.
func (rl *RateLimiter) Check(chatID int64) *RateLimitResult {
	if rl.config.Whitelist[chatID] {
		return &RateLimitResult{Allowed: true}
	}
	now := rl.config.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.chats[chatID]
	if !ok {
		st = &chatState{bucket: rate.NewLimiter(rl.limit, rl.config.BurstSize)}
		rl.chats[chatID] = st
	}
	st.lastSeen = now

	if now.Before(st.bannedUntil) {
		return st.reject(st.bannedUntil.Sub(now), true)
	}
	if st.bucket.AllowN(now, 1) {
		st.warned = false
		return &RateLimitResult{Allowed: true}
	}

	if now.Sub(st.lastViolated) > rl.config.ViolationWindow {
		st.violations = 0
	}
	st.violations++
	st.lastViolated = now

	if rl.config.BanThreshold > 0 && rl.config.BanDuration > 0 && st.violations >= rl.config.BanThreshold {
		st.bannedUntil = now.Add(rl.config.BanDuration)
		st.violations = 0
		st.warned = false
		return st.reject(rl.config.BanDuration, true)
	}

	missing := 1 - st.bucket.TokensAt(now)
	return st.reject(time.Duration(missing/float64(rl.limit)*float64(time.Second)), false)
}

// reject reports a rejection; only the first one in a row carries Notify.
func (st *chatState) reject(retryAfter time.Duration, banned bool) *RateLimitResult {
	notify := !st.warned
	st.warned = true
	return &RateLimitResult{RetryAfter: retryAfter, Banned: banned, Notify: notify}
}

// Reset forgets the state of a chat.
func (rl *RateLimiter) Reset(chatID int64) {
	rl.mu.Lock()
	delete(rl.chats, chatID)
	rl.mu.Unlock()
}

// Len returns the number of tracked chats.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.chats)
}

// Cleanup drops idle buckets whose ban has expired.
func (rl *RateLimiter) Cleanup() int {
	now := rl.config.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, st := range rl.chats {
		if now.Sub(st.lastSeen) > rl.config.IdleTTL && !now.Before(st.bannedUntil) {
			delete(rl.chats, id)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = rl.config.IdleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}
