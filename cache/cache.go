// Package cache provides a best-effort existence cache for the blob
// store (C3): a hint that a given content hash has already been
// published to ByHashRoot, so the publish path can skip a stat() call
// on the hot path. A cache miss or cache error never blocks a copy —
// callers always fall back to checking the filesystem directly.
package cache

import "context"

// BlobCache records which content hashes are known to exist in the
// blob store. Implementations must treat errors as "unknown" rather
// than failing the caller.
type BlobCache interface {
	// Exists reports whether hash is known to have been published.
	// A false return does not mean the blob is absent — only that the
	// cache has no record of it; the caller must still check the
	// filesystem before concluding the blob is missing.
	Exists(ctx context.Context, hash string) (bool, error)

	// MarkExists records that hash has been published.
	MarkExists(ctx context.Context, hash string) error

	Ping(ctx context.Context) error
}

// NoCache is a BlobCache that never has anything cached, used when
// NTT_REDIS_ADDR is unset. Every Exists call costs a filesystem stat.
type NoCache struct{}

func (NoCache) Exists(ctx context.Context, hash string) (bool, error) { return false, nil }
func (NoCache) MarkExists(ctx context.Context, hash string) error     { return nil }
func (NoCache) Ping(ctx context.Context) error                        { return nil }
