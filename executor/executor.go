// Package executor implements the plan executor (C6): filesystem-first
// execution of an analyzer Plan, followed by a single atomic database
// transaction per batch (spec.md §4.6).
package executor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/analyzer"
	"github.com/vm-wylbur/ntt-sub000/db"
)

// Linker is the subset of blobstore.Store the executor's filesystem
// phase needs.
type Linker interface {
	LinkInto(ctx context.Context, hash, archivePath string) error
}

// Outcome is what the filesystem phase produced for one inode, ready
// to be folded into db.InodeResult once the whole batch's filesystem
// work is done.
type Outcome struct {
	MediumHash  string
	Device      uint64
	InodeNumber uint64

	// Released is true when the filesystem phase failed and the
	// claim must be released instead of the inode transitioning to a
	// terminal state.
	Released bool

	Status    ntt.Status
	ErrorType ntt.ErrorType
	BlobID    string
	// NewHardlinks counts paths successfully linked in this attempt;
	// added to blobs.n_hardlinks in the database phase.
	NewHardlinks int64
	ErrMessage   string
	PathUpdates  []db.PathMimeUpdate
}

// ExecuteFilesystem runs the filesystem-phase work for plan and
// returns the Outcome to accumulate into the batch. It never itself
// touches the database — per spec.md §4.6 that happens in a single
// transaction after every inode in the batch has been processed this
// way.
func ExecuteFilesystem(ctx context.Context, in ntt.Inode, plan analyzer.Plan, archiveRoot string, linker Linker) Outcome {
	base := Outcome{MediumHash: in.MediumHash, Device: in.Device, InodeNumber: in.InodeNumber}

	switch {
	case plan.HandleEmpty != nil:
		return linkPaths(ctx, base, linker, ntt.EmptyBlobHash, "", plan.HandleEmpty.Paths)

	case plan.PublishNewBlob != nil:
		p := plan.PublishNewBlob
		return linkPaths(ctx, base, linker, p.Hash, p.MimeType, p.Paths)

	case plan.LinkExistingBlob != nil:
		p := plan.LinkExistingBlob
		return linkPaths(ctx, base, linker, p.Hash, p.MimeType, p.Paths)

	case plan.CreateDirectory != nil:
		return createDirectories(base, archiveRoot, plan.CreateDirectory.Paths)

	case plan.CreateSymlink != nil:
		return createSymlinks(base, archiveRoot, plan.CreateSymlink.Target, plan.CreateSymlink.Paths)

	case plan.RecordSpecial != nil:
		base.Status = ntt.StatusSuccess
		return base

	case plan.Skip != nil:
		base.Status = ntt.StatusFailedPermanent
		base.ErrorType = ntt.ErrorTypeUnknown
		base.ErrMessage = plan.Skip.Reason
		return base

	default:
		base.Status = ntt.StatusFailedPermanent
		base.ErrorType = ntt.ErrorTypeUnknown
		base.ErrMessage = "empty plan"
		return base
	}
}

func linkPaths(ctx context.Context, base Outcome, linker Linker, hash, mimeType string, paths []ntt.Path) Outcome {
	var linked int64
	for _, p := range paths {
		if err := linker.LinkInto(ctx, hash, string(p.PathBytes)); err != nil {
			return fail(base, err, linked)
		}
		linked++
		if mimeType != "" {
			base.PathUpdates = append(base.PathUpdates, db.PathMimeUpdate{
				MediumHash: base.MediumHash,
				PathBytes:  p.PathBytes,
				MimeType:   mimeType,
			})
		}
	}
	base.Status = ntt.StatusSuccess
	base.BlobID = hash
	base.NewHardlinks = linked
	return base
}

func createDirectories(base Outcome, archiveRoot string, paths []ntt.Path) Outcome {
	for _, p := range paths {
		target := filepath.Join(archiveRoot, string(p.PathBytes))
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fail(base, err, 0)
		}
	}
	base.Status = ntt.StatusSuccess
	return base
}

func createSymlinks(base Outcome, archiveRoot string, target []byte, paths []ntt.Path) Outcome {
	for _, p := range paths {
		dest := filepath.Join(archiveRoot, string(p.PathBytes))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fail(base, err, 0)
		}
		if err := os.Symlink(string(target), dest); err != nil && !os.IsExist(err) {
			return fail(base, err, 0)
		}
	}
	base.Status = ntt.StatusSuccess
	return base
}

// fail classifies err via package ntt's taxonomy and decides the
// terminal status per spec.md §4.6: io/hash errors are permanent,
// everything else is retryable.
//
// partialLinks is nonzero only when the failure came from linkPaths
// after at least one hardlink in the fan-out already succeeded. Per
// spec.md §4.3 point 3, those earlier hardlinks are not rolled back,
// but the DB update for this attempt is skipped entirely and the
// inode stays pending: crediting the partial count here would
// double-count once the idempotent retry relinks every path and
// credits the full count again.
func fail(base Outcome, err error, partialLinks int64) Outcome {
	if partialLinks > 0 {
		base.Released = true
		return base
	}

	errType := ntt.Classify(err)
	base.ErrorType = errType
	base.ErrMessage = err.Error()
	if errType.IsPermanent() {
		base.Status = ntt.StatusFailedPermanent
	} else {
		base.Status = ntt.StatusFailedRetryable
	}
	return base
}

// FailedOutcome classifies an error raised before the filesystem
// phase ever ran — i.e. while the analyzer (C5) was reading, hashing,
// and staging the source file — into the same terminal Outcome shape
// ExecuteFilesystem produces for its own failures, so both paths
// funnel through one classification and one diagnostic checkpoint
// (spec.md §4.6: "If any filesystem step throws… the error is
// classified via C1… becomes failed_retryable / failed_permanent, or
// stays pending").
func FailedOutcome(in ntt.Inode, err error) Outcome {
	base := Outcome{MediumHash: in.MediumHash, Device: in.Device, InodeNumber: in.InodeNumber}
	return fail(base, err, 0)
}

// ToInodeResult converts a filesystem-phase Outcome into the
// db.InodeResult shape the database phase commits. Released outcomes
// have no corresponding InodeResult — ReleaseClaim is called directly
// instead.
func ToInodeResult(o Outcome) db.InodeResult {
	r := db.InodeResult{
		MediumHash:   o.MediumHash,
		Device:       o.Device,
		InodeNumber:  o.InodeNumber,
		Status:       o.Status,
		ErrorType:    o.ErrorType,
		BlobID:       o.BlobID,
		NewHardlinks: o.NewHardlinks,
		NewError:     o.ErrMessage,
		PathUpdates:  o.PathUpdates,
	}
	return r
}
