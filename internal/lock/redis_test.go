package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis, *logtest.Hook) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	log, hook := logtest.NewNullLogger()
	return NewRedisLocker(rdb, "lock", ttl, 5*time.Millisecond, log), mr, hook
}

func TestRedisLockerExcludesAndReleases(t *testing.T) {
	l, mr, _ := newRedisLocker(t, time.Minute)
	key := TableKey("t1", "2026-10-20")

	unlock, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("lock:" + key) {
		t.Fatal("lock key not written")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, key); err == nil {
		t.Fatal("second holder acquired a held lock")
	}

	unlock()
	unlock()
	if mr.Exists("lock:" + key) {
		t.Fatal("lock key survived unlock")
	}
	again, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	again()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	l, mr, _ := newRedisLocker(t, time.Second)
	key := TableKey("t1", "2026-10-20")

	stale, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	owner, _ := mr.Get("lock:" + key)

	stale()
	if got, _ := mr.Get("lock:" + key); got != owner {
		t.Fatalf("expired holder released the new owner's lock: %q != %q", got, owner)
	}
	fresh()
	if mr.Exists("lock:" + key) {
		t.Fatal("owner could not release its lock")
	}
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	l, mr, hook := newRedisLocker(t, time.Minute)
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	mr.Close()
	unlock()

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["lock"] != "lock:k" {
		t.Fatalf("release failure not logged: %+v", entry)
	}
}
