package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired lock taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker is a Locker shared by every instance talking to the same
// Redis.  Locks are SET NX with a TTL so a crashed holder cannot block a
// table forever; the TTL must comfortably exceed one booking write.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    logrus.FieldLogger
}

// NewRedisLocker returns a RedisLocker.  ttl bounds how long a lock may be
// held; retry is the polling interval while waiting.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl, retry time.Duration, log logrus.FieldLogger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	if prefix == "" {
		prefix = "lock"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retry: retry, log: log}
}

// Lock polls SET NX until it wins the key or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.rdb == nil {
		return nil, errors.New("lock: redis client is nil")
	}
	full := l.prefix + ":" + key
	token := uuid.NewString()
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Err(); err != nil {
						l.log.WithError(err).WithField("lock", full).Warn("lock release failed; it expires with its ttl")
					}
				})
			}, nil
		}
		t.Reset(l.retry)
	}
}
