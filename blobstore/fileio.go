// Package blobstore implements the content-addressed blob store (C3):
// a two-level hash-sharded directory layout under BYHASH_ROOT, atomic
// publish of new blobs, and idempotent hardlink fan-out into
// ARCHIVE_ROOT.
package blobstore

import (
	"context"
	"os"
	"strings"

	"github.com/vm-wylbur/ntt-sub000"
)

// FileIO is the filesystem surface the blob store needs. Retrying on
// transient errors and classifying permanent ones is handled inside
// the default implementation; tests substitute a fake that can inject
// specific failures.
//
// Grounded on SharedCode/sop's fs/file_io.go FileIO interface, trimmed
// to the operations the blob store and executor actually call (no
// ReadDir/RemoveAll — directory enumeration is out of scope here).
type FileIO interface {
	WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Remove(ctx context.Context, name string) error
	Rename(ctx context.Context, oldname, newname string) error
	Link(ctx context.Context, oldname, newname string) error
	Exists(ctx context.Context, path string) bool
	MkdirAll(ctx context.Context, path string, perm os.FileMode) error
	Stat(ctx context.Context, path string) (os.FileInfo, error)
}

type osFileIO struct{}

// NewFileIO returns the default, os-package-backed FileIO.
func NewFileIO() FileIO { return osFileIO{} }

func (osFileIO) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	var retryErr error
	err := ntt.Retry(ctx, func(context.Context) error {
		werr := os.WriteFile(name, data, perm)
		if werr != nil && ntt.ShouldRetry(werr) {
			return werr
		}
		retryErr = werr
		return nil
	}, nil)
	if err != nil {
		return err
	}
	return retryErr
}

func (osFileIO) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var ba []byte
	var retryErr error
	err := ntt.Retry(ctx, func(context.Context) error {
		var rerr error
		ba, rerr = os.ReadFile(name)
		if rerr != nil && ntt.ShouldRetry(rerr) {
			return rerr
		}
		retryErr = rerr
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return ba, retryErr
}

func (osFileIO) Remove(ctx context.Context, name string) error {
	err := os.Remove(name)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Rename is the atomic publish primitive (spec §4.3) — never retried,
// since a failed rename across a race is meaningful to the caller.
func (osFileIO) Rename(ctx context.Context, oldname, newname string) error {
	return os.Rename(oldname, newname)
}

// Link creates a hardlink, surfacing os.ErrExist as-is when newname
// already exists. Per spec §4.3 an existing target is idempotent only
// when it already resolves to oldname's same underlying file;
// distinguishing that from a genuine collision requires comparing the
// two paths' identity, which is Store.LinkInto's job, not this
// package-private wrapper's.
func (osFileIO) Link(ctx context.Context, oldname, newname string) error {
	return os.Link(oldname, newname)
}

func (osFileIO) Exists(ctx context.Context, path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFileIO) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	err := os.MkdirAll(path, perm)
	if err != nil && strings.Contains(err.Error(), "read-only file system") {
		return err
	}
	if err != nil && ntt.ShouldRetry(err) {
		return ntt.Retry(ctx, func(context.Context) error {
			return os.MkdirAll(path, perm)
		}, nil)
	}
	return err
}

func (osFileIO) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	return os.Stat(path)
}
