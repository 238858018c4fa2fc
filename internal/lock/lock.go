// Package lock serializes work that must not interleave, keyed by a
// string such as "table:<id>:<date>".  The booking ledger holds the key of
// a (table, date) across its conflict check and write; the waitlist holds
// the (restaurant, date) key while it consumes the FIFO head.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key.  The returned function
// releases it and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TableKey is the serialization key for bookings of one table on one day.
func TableKey(tableID, date string) string { return "table:" + tableID + ":" + date }

// WaitlistKey is the serialization key for promotions of one waitlist day.
func WaitlistKey(restaurantID, date string) string { return "waitlist:" + restaurantID + ":" + date }

// SeriesKey is the serialization key for one recurring series.
func SeriesKey(seriesID string) string { return "series:" + seriesID }

// KeyedMutex is an in-process Locker.  Each key gets a one-slot channel
// that is created on first use and dropped when no goroutine holds or
// waits for it, so memory stays proportional to contention.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// held reports how many keys are currently tracked.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
