// Package ristretto implements the cache port with an in-process
// dgraph-io/ristretto cache. It backs the resolved-principal cache.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is an in-process, cost-bounded cache. Values are costed by length.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes <= 0 {
		return nil, errors.New("ristretto: max cost must be positive")
	}
	counters := maxCostBytes / 100 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: new cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get returns the value stored under key.
func (c *Cache) Get(_ context.Context, key string) (value []byte, found bool, err error) {
	val, ok := c.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value under key for ttl. The write is visible to the next Get;
// admission may still reject it under memory pressure.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
