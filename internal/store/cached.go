package store

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cached puts an in-process ristretto cache in front of another KV.
// Writes go to both; reads hit the cache first and backfill it on a miss.
// Writes made by other processes are invisible until the entry expires.
type Cached struct {
	next  KV
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// NewCached wraps next. maxCostBytes bounds the total size of cached values.
func NewCached(next KV, maxCostBytes int64, ttl time.Duration) (*Cached, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 100),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: c, ttl: ttl}, nil
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		return append([]byte(nil), v...), true, nil
	}
	v, ok, err := c.next.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	c.set(key, v)
	return v, true, nil
}

func (c *Cached) Put(ctx context.Context, key string, value []byte) error {
	if err := c.next.Put(ctx, key, value); err != nil {
		c.cache.Del(key)
		c.cache.Wait()
		return err
	}
	c.set(key, value)
	return nil
}

func (c *Cached) set(key string, value []byte) {
	v := append([]byte(nil), value...)
	c.cache.SetWithTTL(key, v, int64(len(v)), c.ttl)
	c.cache.Wait()
}

// Close releases the cache's goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}
