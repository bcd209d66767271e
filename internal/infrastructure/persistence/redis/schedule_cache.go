package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

// ScheduleCache stores rendered schedules. A key holds the fingerprint of the
// document it was rendered from, so a new document version never hits old entries.
type ScheduleCache struct {
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewScheduleCache creates a schedule cache. ttl <= 0 selects TTLSchedule.
func NewScheduleCache(cache *Cache, ttl time.Duration, logger *slog.Logger) *ScheduleCache {
	if ttl <= 0 {
		ttl = TTLSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleCache{cache: cache, ttl: ttl, logger: logger}
}

// Get returns the cached rendering. The second result is false on a miss; Redis
// failures are logged and reported as misses so that rendering falls back to the
// in-memory snapshot.
func (s *ScheduleCache) Get(ctx context.Context, fingerprint string, group timetable.GroupCode) (string, bool) {
	val, err := s.cache.GetString(ctx, ScheduleKey(fingerprint, string(group)))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("schedule cache get failed", "group", group, "error", err)
		}
		return "", false
	}
	return val, true
}

// Set stores a rendering. Failures are logged only.
func (s *ScheduleCache) Set(ctx context.Context, fingerprint string, group timetable.GroupCode, rendered string) {
	if err := s.cache.SetString(ctx, ScheduleKey(fingerprint, string(group)), rendered, s.ttl); err != nil {
		s.logger.Warn("schedule cache set failed", "group", group, "error", err)
	}
}

// Purge drops renderings of every fingerprint other than keep.
func (s *ScheduleCache) Purge(ctx context.Context, keep string) (int, error) {
	iter := s.cache.Client().Scan(ctx, 0, s.cache.Key(SchedulePattern()), 200).Iterator()
	current := s.cache.Key(PrefixSchedule + keep + ":")
	var stale []string
	for iter.Next(ctx) {
		key := iter.Val()
		if keep != "" && strings.HasPrefix(key, current) {
			continue
		}
		stale = append(stale, key)
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if err := s.cache.DeleteRaw(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
