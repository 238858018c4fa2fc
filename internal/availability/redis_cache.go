package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores availability results in Redis so every instance of
// the service shares them.  Each (restaurant, date) keeps a set of the keys
// written for it, which lets InvalidateDate drop all of them without a
// SCAN.  Generation counters per date and per restaurant retire entries
// written by computations that raced an invalidation.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache returns a RedisCache namespacing its keys with prefix.
func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "avail"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) key(k Key) string { return c.prefix + ":" + k.String() }

func (c *RedisCache) index(restaurantID, date string) string {
	return c.prefix + ":idx:" + restaurantID + ":" + date
}

func (c *RedisCache) generation(restaurantID, date string) string {
	return c.prefix + ":gen:" + restaurantID + ":" + date
}

func (c *RedisCache) restaurantGeneration(restaurantID string) string {
	return c.prefix + ":gen:" + restaurantID
}

func (c *RedisCache) Generation(ctx context.Context, restaurantID, date string) (int64, error) {
	vals, err := c.rdb.MGet(ctx, c.generation(restaurantID, date), c.restaurantGeneration(restaurantID)).Result()
	if err != nil {
		return 0, err
	}
	var gen int64
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("availability generation %q: %w", s, err)
		}
		gen += n
	}
	return gen, nil
}

func (c *RedisCache) bump(ctx context.Context, key string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, generationTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Get(ctx context.Context, key Key) (*Result, bool, error) {
	bs, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var res Result
	if err := json.Unmarshal(bs, &res); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, res *Result, ttl time.Duration) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	idx := c.index(key.RestaurantID, key.Date)
	pipe := c.rdb.TxPipeline()
	pipe.SetEx(ctx, c.key(key), payload, ttl)
	pipe.SAdd(ctx, idx, c.key(key))
	pipe.Expire(ctx, idx, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) InvalidateDate(ctx context.Context, restaurantID, date string) error {
	if err := c.bump(ctx, c.generation(restaurantID, date)); err != nil {
		return err
	}
	idx := c.index(restaurantID, date)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	return c.rdb.Del(ctx, append(keys, idx)...).Err()
}

// InvalidateRestaurant bumps the restaurant's generation.  Entries written
// under older generations are no longer read and expire with their TTL.
func (c *RedisCache) InvalidateRestaurant(ctx context.Context, restaurantID string) error {
	return c.bump(ctx, c.restaurantGeneration(restaurantID))
}
