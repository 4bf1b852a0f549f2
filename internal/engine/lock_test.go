package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, 5*time.Second), mr
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "provider-1:alice")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	_, ok, err = locker.Acquire(ctx, "provider-1:alice")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("second acquire succeeded while lock held")
	}

	// A different calendar is independent.
	release2, ok, err := locker.Acquire(ctx, "provider-1:bob")
	if err != nil || !ok {
		t.Fatalf("other calendar acquire: ok=%v err=%v", ok, err)
	}
	release2()

	release()
	_, ok, err = locker.Acquire(ctx, "provider-1:alice")
	if err != nil || !ok {
		t.Fatalf("reacquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockerReleaseIsTokenGuarded(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "provider-1:alice")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// The lock expires and another holder takes it.
	mr.FastForward(6 * time.Second)
	_, ok, err = locker.Acquire(ctx, "provider-1:alice")
	if err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}

	// The stale holder's release must not free the new holder's lock.
	release()
	if !mr.Exists("lock:provider-1:alice") {
		t.Fatalf("stale release deleted another holder's lock")
	}
}
