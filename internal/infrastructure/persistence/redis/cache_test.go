package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "schedule:abc:ИС-951", ScheduleKey("abc", "ИС-951"))
	assert.Equal(t, "schedule:*", SchedulePattern())
	assert.Equal(t, "lock:document-refresh", LockKey("document-refresh"))
}

func TestNewScheduleCache_Defaults(t *testing.T) {
	c := NewScheduleCache(nil, 0, nil)
	assert.Equal(t, TTLSchedule, c.ttl)
	assert.NotNil(t, c.logger)

	l := NewLocker(nil, 0)
	assert.Equal(t, TTLDistributedLock, l.ttl)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultNamespace, o.Namespace)
	assert.Equal(t, 5*time.Second, o.DialTimeout)
	assert.Equal(t, 2, o.MaxRetries)

	o = Options{Namespace: "staging:", MaxRetries: -1}.withDefaults()
	assert.Equal(t, "staging:", o.Namespace)
	assert.Equal(t, -1, o.MaxRetries)
}

func TestCache_Key(t *testing.T) {
	c := &Cache{namespace: "bot:"}
	assert.Equal(t, "bot:schedule:fp:ИС-951", c.Key(ScheduleKey("fp", "ИС-951")))
	assert.Equal(t, "bot:lock:refresh", c.Key(LockKey("refresh")))
}

func TestCache_RejectsBadInput(t *testing.T) {
	c := &Cache{namespace: "bot:"}
	ctx := context.Background()
	assert.ErrorIs(t, c.SetString(ctx, "", "v", time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.SetString(ctx, "k", "v", -time.Second), ErrCacheInvalidTTL)
	_, err := c.GetString(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.NoError(t, c.DeleteRaw(ctx))
}
