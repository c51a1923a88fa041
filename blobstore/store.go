package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/cache"
)

// permission matches SharedCode/sop's blob store directory/file mode:
// read/write/execute for everyone plus the sticky bit, since multiple
// worker processes (possibly running as different users during
// recovery) share the tree.
const permission os.FileMode = os.ModeSticky | 0o777

// Store is the content-addressed blob store (C3): a ByHashRoot holding
// one copy of every distinct content hash, and an ArchiveRoot holding
// the hardlinked directory tree a human browses.
//
// Grounded on SharedCode/sop's fs/blobstore.go blobStore type, with
// the UUID-keyed multi-table Add/Remove batch API replaced by the
// single-hash Publish/LinkInto operations spec.md §4.3 requires, and
// fs/manage_store_folder.go's CreateStore folded into EnsureRoots.
type Store struct {
	fileIO      FileIO
	cache       cache.BlobCache
	byHashRoot  string
	archiveRoot string
}

// New constructs a Store. If fileIO is nil the default os-backed
// implementation is used; if blobCache is nil, existence checks always
// fall through to the filesystem.
func New(byHashRoot, archiveRoot string, fileIO FileIO, blobCache cache.BlobCache) *Store {
	if fileIO == nil {
		fileIO = NewFileIO()
	}
	if blobCache == nil {
		blobCache = cache.NoCache{}
	}
	return &Store{
		fileIO:      fileIO,
		cache:       blobCache,
		byHashRoot:  byHashRoot,
		archiveRoot: archiveRoot,
	}
}

// EnsureRoots creates ByHashRoot and ArchiveRoot if they don't exist,
// and publishes the pinned empty blob (ntt.EmptyBlobHash) once so that
// size-0 inodes always have a blob to hardlink to.
func (s *Store) EnsureRoots(ctx context.Context) error {
	if err := s.fileIO.MkdirAll(ctx, s.byHashRoot, permission); err != nil {
		return err
	}
	if err := s.fileIO.MkdirAll(ctx, s.archiveRoot, permission); err != nil {
		return err
	}
	emptyPath := BlobPath(s.byHashRoot, ntt.EmptyBlobHash)
	if s.fileIO.Exists(ctx, emptyPath) {
		return nil
	}
	if err := s.fileIO.MkdirAll(ctx, shardPath(s.byHashRoot, ntt.EmptyBlobHash), permission); err != nil {
		return err
	}
	return s.fileIO.WriteFile(ctx, emptyPath, nil, 0o644)
}

// Exists reports whether hash has already been published, consulting
// the cache (if configured) before falling back to a filesystem stat.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	if ok, err := s.cache.Exists(ctx, hash); err == nil && ok {
		return true, nil
	}
	exists := s.fileIO.Exists(ctx, BlobPath(s.byHashRoot, hash))
	if exists {
		// Best-effort: a cache write failure must never fail the caller.
		_ = s.cache.MarkExists(ctx, hash)
	}
	return exists, nil
}

// StageAndPublish lets read stream the content into a scratch file in
// ByHashRoot and return its content hash, then atomically renames the
// scratch file into the hash's shard. The returned hash is the one
// read reported.
//
// If another worker concurrently published the same content, the
// target already existing after a failed rename is not an error —
// per spec §8 scenario 2 (race on publish), both workers converge on
// the same blob and one of them removes its redundant temp file.
func (s *Store) StageAndPublish(ctx context.Context, read func(w *os.File) (hash string, err error), tempToken string) (hash string, createdByUs bool, err error) {
	// The caller writes through an *os.File directly (not io.Writer)
	// because blobs can be arbitrarily large; buffering through this
	// package would defeat the point of streaming.
	//
	// Stage into a fixed scratch location first, since the shard
	// directory depends on the hash, which isn't known until the
	// stream has been fully read.
	scratch, err := os.CreateTemp(s.byHashRoot, ".stage-"+tempToken+"-*")
	if err != nil {
		return "", false, err
	}
	scratchPath := scratch.Name()
	defer func() {
		// Always clean up the scratch file: on success it has already
		// been renamed away and Remove is a no-op; on error it's
		// orphaned and must not linger.
		_ = os.Remove(scratchPath)
	}()

	h, rerr := read(scratch)
	closeErr := scratch.Close()
	if rerr != nil {
		return "", false, rerr
	}
	if closeErr != nil {
		return "", false, closeErr
	}

	return s.publishStaged(ctx, scratchPath, h)
}

func (s *Store) publishStaged(ctx context.Context, stagedPath, hash string) (string, bool, error) {
	dir := shardPath(s.byHashRoot, hash)
	if err := s.fileIO.MkdirAll(ctx, dir, permission); err != nil {
		return "", false, err
	}

	finalPath := BlobPath(s.byHashRoot, hash)
	if exists, _ := s.Exists(ctx, hash); exists {
		// Another worker (or an earlier inode in this same batch with
		// identical content) already published this hash.
		return hash, false, nil
	}

	// Rename within byHashRoot is same-filesystem by construction, so
	// this is atomic per spec §4.3.
	if err := s.fileIO.Rename(ctx, stagedPath, finalPath); err != nil {
		if os.IsExist(err) {
			return hash, false, nil
		}
		// A concurrent renamer may have won the race between our Exists
		// check and our Rename; re-check before surfacing the error.
		if s.fileIO.Exists(ctx, finalPath) {
			return hash, false, nil
		}
		return "", false, err
	}

	_ = s.cache.MarkExists(ctx, hash)
	return hash, true, nil
}

// LinkInto hardlinks the published blob for hash to archivePath,
// creating parent directories as needed. Idempotent only when
// archivePath already resolves to hash's own blob (spec §4.3 point 2):
// relinking the same (hash, archivePath) pair a second time is a
// no-op, but an archivePath already hardlinked to a *different* blob
// is a consistency error, not a silently-accepted collision.
func (s *Store) LinkInto(ctx context.Context, hash, archivePath string) error {
	target := filepath.Join(s.archiveRoot, archivePath)
	if err := s.fileIO.MkdirAll(ctx, filepath.Dir(target), permission); err != nil {
		return err
	}
	src := BlobPath(s.byHashRoot, hash)

	if err := s.fileIO.Link(ctx, src, target); err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("link %s -> %s: %w", src, target, err)
		}
		same, sameErr := s.sameBlob(ctx, src, target)
		if sameErr != nil {
			return fmt.Errorf("verify existing link %s: %w", target, sameErr)
		}
		if !same {
			return fmt.Errorf("archive path %s already exists and is linked to a different blob than %s", target, hash)
		}
	}
	return nil
}

// sameBlob reports whether src and target already refer to the same
// underlying file, so a pre-existing archive path can be told apart
// from a genuine collision with another blob.
func (s *Store) sameBlob(ctx context.Context, src, target string) (bool, error) {
	srcInfo, err := s.fileIO.Stat(ctx, src)
	if err != nil {
		return false, err
	}
	targetInfo, err := s.fileIO.Stat(ctx, target)
	if err != nil {
		return false, err
	}
	return os.SameFile(srcInfo, targetInfo), nil
}

// Read returns the full contents of the published blob for hash.
// Used by the recovery tool and by diagnostics re-verifying content.
func (s *Store) Read(ctx context.Context, hash string) ([]byte, error) {
	return s.fileIO.ReadFile(ctx, BlobPath(s.byHashRoot, hash))
}
