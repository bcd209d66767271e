package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("cache: lock is held by another owner")

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived distributed locks.
type Locker struct {
	cache *Cache
	ttl   time.Duration
}

// NewLocker creates a locker. ttl <= 0 selects TTLDistributedLock.
func NewLocker(cache *Cache, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	return &Locker{cache: cache, ttl: ttl}
}

// Acquire takes the lock on resource. It returns ErrLockHeld when the lock is
// taken; the returned release function is safe to call more than once.
func (l *Locker) Acquire(ctx context.Context, resource string) (func(context.Context) error, error) {
	key := l.cache.Key(LockKey(resource))
	token := uuid.NewString()

	ok, err := l.cache.Client().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", resource, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.cache.Client(), []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", resource, err)
		}
		return nil
	}, nil
}
