// Package memory implements cache.Cache on an in-process ristretto cache.
package memory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/lore/cache"
)

// DefaultMaxBytes bounds the cache when no size is configured.
const DefaultMaxBytes = 64 << 20

// Cache is a cost-bounded cache where each entry costs its value length.
type Cache struct {
	store *ristretto.Cache[string, []byte]
}

var _ cache.Cache = (*Cache)(nil)

// New creates a cache holding at most maxBytes of values.
func New(maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// ~10x the expected number of entries at 1KiB average
		NumCounters: max(maxBytes/100, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := c.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// Set may silently drop the entry when the admission policy rejects it; a
// later Get then misses.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := append([]byte(nil), value...)
	c.store.SetWithTTL(key, stored, int64(len(stored))+1, ttl)
	// make the write visible to the next Get
	c.store.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.store.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.store.Close()
}
