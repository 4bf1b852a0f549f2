package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes booking attempts on one (provider, staff) calendar. It is
// a UX guard against thundering herds on popular slots; the database
// exclusion constraint remains the authoritative conflict arbiter, so a
// failed or unavailable lock never compromises correctness.
type Locker interface {
	// Acquire returns a release func, or ok=false when the calendar is
	// currently locked by another request.
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// RedisLocker implements Locker with a SET NX PX mutex and a
// compare-and-delete release so an expired lock is never released on behalf
// of its next holder.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, "lock:"+key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = redisUnlockScript.Run(ctx, l.rdb, []string{"lock:" + key}, token).Result()
	}
	return release, true, nil
}

// noopLocker is used when no Redis is configured; the exclusion constraint
// alone arbitrates conflicts.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
