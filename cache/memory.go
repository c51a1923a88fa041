package cache

import (
	"context"
	"sync"
)

// InMemoryBlobCache is a process-local BlobCache, used in tests and as
// a fallback implementation. Unlike RedisBlobCache its state does not
// survive a worker restart, so it only ever saves a stat() call within
// a single run.
//
// Grounded on SharedCode/sop's cache/l2inmemorycache.go: same
// mutex-guarded map shape, with the sharding and TTL-eviction machinery
// dropped — an existence cache holds one bit per hash and is sized for
// a single worker's batch, not for a shared multi-tenant cache.
type InMemoryBlobCache struct {
	mu    sync.RWMutex
	known map[string]struct{}
}

func NewInMemoryBlobCache() *InMemoryBlobCache {
	return &InMemoryBlobCache{known: make(map[string]struct{})}
}

func (c *InMemoryBlobCache) Exists(ctx context.Context, hash string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.known[hash]
	return ok, nil
}

func (c *InMemoryBlobCache) MarkExists(ctx context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[hash] = struct{}{}
	return nil
}

func (c *InMemoryBlobCache) Ping(ctx context.Context) error {
	return nil
}
