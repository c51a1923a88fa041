// Package analyzer implements the inode analyzer (C5): given a
// claimed inode and its path list, decide the copy action and produce
// an executable plan (spec.md §4.5).
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/vm-wylbur/ntt-sub000"
)

// Plan is the sum type the analyzer produces. Exactly one field is
// non-nil; callers switch on which, mirroring a tagged-variant match
// rather than inspecting a string discriminator.
//
// Grounded on spec.md §4.5's action table: one concrete type per
// action instead of a single struct with a string Action field and a
// grab-bag of optional fields, so each variant carries only the fields
// its executor arm reads. The compiler does not check that the
// executor's switch covers every variant; a Plan with no field set
// reaches the executor's default case and fails the inode permanently.
type Plan struct {
	HandleEmpty      *HandleEmpty
	PublishNewBlob   *PublishNewBlob
	LinkExistingBlob *LinkExistingBlob
	CreateDirectory  *CreateDirectory
	CreateSymlink    *CreateSymlink
	RecordSpecial    *RecordSpecial
	Skip             *Skip
}

// HandleEmpty links every path of a size-0 regular file to the pinned
// empty blob; no filesystem copy is performed.
type HandleEmpty struct {
	Paths []ntt.Path
}

// PublishNewBlob is produced for a content hash the blob store had
// never seen; staging and the atomic rename into place have already
// happened inside StageAndPublish by the time this is returned.
type PublishNewBlob struct {
	Hash     string
	MimeType string
	Paths    []ntt.Path
}

// LinkExistingBlob is produced when the computed hash already has a
// published blob; the temp file analysis staged has already been
// removed by the time this plan is returned.
type LinkExistingBlob struct {
	Hash     string
	MimeType string
	Paths    []ntt.Path
}

// CreateDirectory instructs the executor to mkdir every path of a
// directory inode.
type CreateDirectory struct {
	Paths []ntt.Path
}

// CreateSymlink carries the link target read byte-for-byte from the
// source filesystem.
type CreateSymlink struct {
	Target []byte
	Paths  []ntt.Path
}

// RecordSpecial is a database-only action for block/char/pipe/socket
// inodes — no filesystem object is ever created in the archive tree.
type RecordSpecial struct {
	Paths []ntt.Path
}

// Skip is produced for an fs_type the analyzer does not recognize.
type Skip struct {
	Reason string
}

// BlobStager is the subset of blobstore.Store the analyzer needs,
// kept as an interface so tests can substitute a fake without staging
// real files.
type BlobStager interface {
	StageAndPublish(ctx context.Context, read func(w *os.File) (hash string, err error), tempToken string) (hash string, createdByUs bool, err error)
}

// Analyze decides the plan for one claimed inode. sourcePath is the
// absolute path to the inode's content under the mounted image (any
// one of its hardlinked paths — content is identical by definition).
// tempToken distinguishes this worker+inode's staging file from any
// other concurrently-staged file sharing the same destination shard.
func Analyze(ctx context.Context, in ntt.Inode, paths []ntt.Path, sourcePath string, store BlobStager, tempToken string) (Plan, error) {
	sortedPaths := sortPaths(paths)

	switch in.FsType {
	case ntt.FsTypeFile:
		if in.Size == 0 {
			return Plan{HandleEmpty: &HandleEmpty{Paths: sortedPaths}}, nil
		}
		return analyzeRegularFile(ctx, sourcePath, store, tempToken, sortedPaths)

	case ntt.FsTypeDirectory:
		return Plan{CreateDirectory: &CreateDirectory{Paths: sortedPaths}}, nil

	case ntt.FsTypeSymlink:
		target, err := os.Readlink(sourcePath)
		if err != nil {
			return Plan{}, fmt.Errorf("readlink %s: %w", sourcePath, err)
		}
		return Plan{CreateSymlink: &CreateSymlink{Target: []byte(target), Paths: sortedPaths}}, nil

	case ntt.FsTypeBlock, ntt.FsTypeChar, ntt.FsTypePipe, ntt.FsTypeSocket:
		return Plan{RecordSpecial: &RecordSpecial{Paths: sortedPaths}}, nil

	default:
		return Plan{Skip: &Skip{Reason: fmt.Sprintf("unrecognized fs_type %q", in.FsType)}}, nil
	}
}

func analyzeRegularFile(ctx context.Context, sourcePath string, store BlobStager, tempToken string, paths []ntt.Path) (Plan, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return Plan{}, fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer src.Close()

	hr := ntt.NewHashingReader(src)

	var hash string
	_, createdByUs, err := store.StageAndPublish(ctx, func(w *os.File) (string, error) {
		if _, err := copyAll(w, hr); err != nil {
			return "", err
		}
		hash = hr.Sum()
		return hash, nil
	}, tempToken)
	if err != nil {
		return Plan{}, fmt.Errorf("stage %s: %w", sourcePath, err)
	}

	mimeType := ntt.SniffMIME(hr.Sniff())

	if createdByUs {
		return Plan{PublishNewBlob: &PublishNewBlob{
			Hash:     hash,
			MimeType: mimeType,
			Paths:    paths,
		}}, nil
	}
	return Plan{LinkExistingBlob: &LinkExistingBlob{
		Hash:     hash,
		MimeType: mimeType,
		Paths:    paths,
	}}, nil
}

// copyAll streams src into dst, same shape as io.Copy but kept local
// so this file has no io-package-specific buffering policy baked in
// beyond what streaming a single pass requires.
func copyAll(dst *os.File, src *ntt.HashingReader) (int64, error) {
	buf := make([]byte, 256*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// sortPaths orders paths lexicographically on raw bytes (spec.md
// §4.5's ordering guarantee), independent of whatever order the
// enumerator or the database returned them in.
func sortPaths(paths []ntt.Path) []ntt.Path {
	sorted := make([]ntt.Path, len(paths))
	copy(sorted, paths)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].PathBytes, sorted[j].PathBytes) < 0
	})
	return sorted
}

// SourcePath joins a medium's mount point with a path's relative bytes
// to form the absolute filesystem location the analyzer reads from.
func SourcePath(imageRoot, mediumHash string, pathBytes []byte) string {
	return filepath.Join(imageRoot, mediumHash, string(pathBytes))
}
