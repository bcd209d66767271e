package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLimiter(clock *fakeClock) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         2,
		IdleTTL:           time.Minute,
		BanDuration:       time.Minute,
		BanThreshold:      3,
		Now:               clock.Now,
	})
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)}
	rl := newLimiter(clock)

	assert.True(t, rl.Check(1).Allowed)
	assert.True(t, rl.Check(1).Allowed)

	res := rl.Check(1)
	require.False(t, res.Allowed)
	assert.True(t, res.Notify)
	assert.Equal(t, time.Second, res.RetryAfter)
	assert.Contains(t, res.Message(), "Подождите 1 сек.")

	// Only the first rejection in a row asks for a warning.
	assert.False(t, rl.Check(1).Notify)

	// Other chats have their own bucket.
	assert.True(t, rl.Check(2).Allowed)

	clock.Advance(time.Second)
	assert.True(t, rl.Check(1).Allowed)
}

func TestRateLimiter_BanAfterRepeatedViolations(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)}
	rl := newLimiter(clock)

	rl.Check(1)
	rl.Check(1)
	rl.Check(1)
	rl.Check(1)
	res := rl.Check(1)

	require.False(t, res.Allowed)
	assert.True(t, res.Banned)
	assert.True(t, res.Notify)
	assert.Equal(t, time.Minute, res.RetryAfter)
	assert.Contains(t, res.Message(), "1 мин.")

	clock.Advance(30 * time.Second)
	res = rl.Check(1)
	assert.False(t, res.Allowed)
	assert.True(t, res.Banned)

	clock.Advance(31 * time.Second)
	assert.True(t, rl.Check(1).Allowed)
}

func TestRateLimiter_Whitelist(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1, Whitelist: map[int64]bool{7: true}})
	for range 10 {
		assert.True(t, rl.Check(7).Allowed)
	}
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)}
	rl := newLimiter(clock)

	rl.Check(1)
	rl.Check(2)
	require.Equal(t, 2, rl.Len())

	clock.Advance(30 * time.Second)
	rl.Check(2)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Len())

	rl.Reset(2)
	assert.Equal(t, 0, rl.Len())
}

func TestRecovery_Panic(t *testing.T) {
	var seen *PanicInfo
	m := NewRecoveryMiddleware(RecoveryConfig{
		UserErrorMessage: "oops",
		OnPanic:          func(_ context.Context, info *PanicInfo) { seen = info },
	})

	res, err := m.Run(context.Background(), 42, "command:/schedule", func() error {
		panic("boom")
	})

	require.NoError(t, err)
	assert.True(t, res.Recovered)
	assert.Equal(t, "oops", res.UserMessage)
	require.NotNil(t, seen)
	assert.Equal(t, int64(42), seen.ChatID)
	assert.Equal(t, "command:/schedule", seen.Route)
	assert.EqualError(t, seen.Error, "boom")
}

func TestRecovery_PassesErrorsThrough(t *testing.T) {
	m := NewRecoveryMiddleware(DefaultRecoveryConfig())
	want := errors.New("handler failed")

	res, err := m.Run(context.Background(), 1, "text", func() error { return want })

	assert.ErrorIs(t, err, want)
	assert.False(t, res.Recovered)
}

func TestRecovery_StacksAreThrottled(t *testing.T) {
	var infos []*PanicInfo
	cfg := DefaultRecoveryConfig()
	cfg.FullStacks = 1
	cfg.OnPanic = func(_ context.Context, info *PanicInfo) { infos = append(infos, info) }
	m := NewRecoveryMiddleware(cfg)

	for range 3 {
		res, err := m.Run(context.Background(), 1, "text", func() error { panic(errors.New("nil map")) })
		require.NoError(t, err)
		assert.True(t, res.Recovered)
	}

	require.Len(t, infos, 3)
	assert.NotEmpty(t, infos[0].StackTrace)
	assert.Empty(t, infos[1].StackTrace)
	assert.Empty(t, infos[2].StackTrace)
	assert.EqualError(t, infos[1].Error, "nil map")
}
