package blobstore

import "os"

// shardPath returns the two-level hash-sharded directory for a content
// hash: {hash[0:2]}/{hash[2:4]}. Callers append hash as the filename.
//
// Grounded on SharedCode/sop's fs/tofilepath.go Apply4LevelHierarchy,
// adapted from a 4-level UUID hierarchy (which exists to keep a much
// larger, randomly-distributed key space's directories small) down to
// the 2-level hex-prefix scheme spec.md §4.3 calls for: a SHA-256 hex
// digest is already uniformly distributed, so two levels of 256
// buckets each keep per-directory file counts low without the extra
// nesting.
func shardPath(root, hash string) string {
	if len(hash) < 4 {
		// Pathologically short input (only possible from a test fixture,
		// never a real SHA-256 hex digest); fall back to a single bucket
		// rather than panicking on a slice out of range.
		return root + string(os.PathSeparator) + "short"
	}
	return root + string(os.PathSeparator) + hash[0:2] + string(os.PathSeparator) + hash[2:4]
}

// BlobPath returns the full path to a published blob's final location.
func BlobPath(root, hash string) string {
	return shardPath(root, hash) + string(os.PathSeparator) + hash
}

// TempPath returns a path in the same shard directory as BlobPath's
// result, suffixed with a worker-unique token, so the publish rename
// (spec §4.3) is guaranteed to land on the same filesystem/partition.
func TempPath(root, hash, token string) string {
	return shardPath(root, hash) + string(os.PathSeparator) + "." + hash + ".tmp." + token
}
