package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBlobCache is a BlobCache backed by Redis. Keys are the blob
// content hash prefixed with "blob:"; the value is irrelevant, only
// key presence matters. Blobs stay published for the archive's
// lifetime, so entries are written with a long TTL (30 days) rather
// than a short one; the TTL still lets a cache that outlives its blob
// store (e.g. after a byhash_root wipe during testing) self-heal.
//
// Grounded on SharedCode/sop's cache/redis.go Connection type: same
// go-redis/v9 client wiring, trimmed down from the general-purpose
// Get/Set/SetStruct surface to the two operations the blob store
// actually needs.
type RedisBlobCache struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultEntryTTL = 30 * 24 * time.Hour

// NewRedisBlobCache dials addr (no connection is made until first use,
// matching go-redis's lazy client).
func NewRedisBlobCache(addr, password string, db int) *RedisBlobCache {
	return &RedisBlobCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: defaultEntryTTL,
	}
}

func (c *RedisBlobCache) key(hash string) string {
	return "blob:" + hash
}

func (c *RedisBlobCache) Exists(ctx context.Context, hash string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}

func (c *RedisBlobCache) MarkExists(ctx context.Context, hash string) error {
	return c.client.Set(ctx, c.key(hash), "1", c.ttl).Err()
}

func (c *RedisBlobCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
