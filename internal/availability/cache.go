package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Key identifies one cached availability answer.  Gen is the generation of
// the (restaurant, date) the answer was computed under; invalidating the
// date or the restaurant bumps the generation, so an answer computed
// concurrently with a change is written under a key no reader asks for.
type Key struct {
	RestaurantID string
	Date         string
	Gen          int64
	PartySize    int
	Duration     int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", k.RestaurantID, k.Date, k.Gen, k.PartySize, k.Duration)
}

// generationTTL outlives any entry TTL, so a generation never resets while
// entries written under it can still be read.
const generationTTL = 24 * time.Hour

// Cache memoizes availability results.  It is never consulted for
// conflict checks, so an entry that outlives a mutation only means a
// stale read bounded by the TTL.
type Cache interface {
	Get(ctx context.Context, key Key) (*Result, bool, error)
	Set(ctx context.Context, key Key, res *Result, ttl time.Duration) error
	// Generation returns the current generation of the restaurant's date:
	// the sum of the date's and the restaurant's invalidation counters.
	// Both only grow, so a generation is never handed out twice.
	Generation(ctx context.Context, restaurantID, date string) (int64, error)
	// InvalidateDate drops every entry of the restaurant on date, whatever
	// the party size or duration, and bumps the date's generation.
	InvalidateDate(ctx context.Context, restaurantID, date string) error
	// InvalidateRestaurant retires the entries of every date of the
	// restaurant after its hours or tables change.
	InvalidateRestaurant(ctx context.Context, restaurantID string) error
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, Key) (*Result, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, Key, *Result, time.Duration) error { return nil }
func (NopCache) Generation(context.Context, string, string) (int64, error) { return 0, nil }
func (NopCache) InvalidateDate(context.Context, string, string) error { return nil }
func (NopCache) InvalidateRestaurant(context.Context, string) error { return nil }

// MemoryCache is a process-local Cache on top of go-cache.  Results are
// stored encoded so a caller mutating a returned value cannot corrupt the
// cache.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache returns an empty MemoryCache.  Expired entries are swept
// every minute.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, time.Minute)}
}

func genKey(restaurantID, date string) string { return "gen|" + restaurantID + ":" + date }

func restaurantGenKey(restaurantID string) string { return "gen|" + restaurantID }

func (c *MemoryCache) Get(_ context.Context, key Key) (*Result, bool, error) {
	v, ok := c.items.Get(key.String())
	if !ok {
		return nil, false, nil
	}
	var res Result
	if err := json.Unmarshal(v.([]byte), &res); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key Key, res *Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	c.items.Set(key.String(), data, ttl)
	return nil
}

func (c *MemoryCache) Generation(_ context.Context, restaurantID, date string) (int64, error) {
	return c.counter(genKey(restaurantID, date)) + c.counter(restaurantGenKey(restaurantID)), nil
}

func (c *MemoryCache) counter(k string) int64 {
	v, ok := c.items.Get(k)
	if !ok {
		return 0
	}
	return v.(int64)
}

func (c *MemoryCache) bump(k string) error {
	if _, err := c.items.IncrementInt64(k, 1); err == nil {
		return nil
	}
	// Add loses only to a concurrent first bump, which already moved the
	// counter past 0.
	if err := c.items.Add(k, int64(1), generationTTL); err == nil {
		return nil
	}
	_, err := c.items.IncrementInt64(k, 1)
	return err
}

func (c *MemoryCache) InvalidateDate(_ context.Context, restaurantID, date string) error {
	if err := c.bump(genKey(restaurantID, date)); err != nil {
		return err
	}
	c.deletePrefix(restaurantID + ":" + date + ":")
	return nil
}

func (c *MemoryCache) InvalidateRestaurant(_ context.Context, restaurantID string) error {
	if err := c.bump(restaurantGenKey(restaurantID)); err != nil {
		return err
	}
	c.deletePrefix(restaurantID + ":")
	return nil
}

func (c *MemoryCache) deletePrefix(prefix string) {
	for k := range c.items.Items() {
		if strings.HasPrefix(k, prefix) {
			c.items.Delete(k)
		}
	}
}

// Len returns the number of unexpired results.
func (c *MemoryCache) Len() int {
	n := 0
	for k := range c.items.Items() {
		if !strings.HasPrefix(k, "gen|") {
			n++
		}
	}
	return n
}
