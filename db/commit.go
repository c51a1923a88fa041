package db

import (
	"context"
	"fmt"
	"time"

	"github.com/vm-wylbur/ntt-sub000"
)

// InodeResult is the outcome the plan executor's filesystem phase
// produced for one claimed inode, ready to be folded into the single
// database-phase transaction (spec.md §4.6).
type InodeResult struct {
	MediumHash  string
	Device      uint64
	InodeNumber uint64
	Status      ntt.Status
	ErrorType   ntt.ErrorType
	BlobID      string // empty when the inode has no associated blob
	// NewHardlinks is added to blobs.n_hardlinks for BlobID; zero for
	// failures and for fs_types that never touch the blob store.
	NewHardlinks int64
	NewError     string // appended to inodes.errors[] when non-empty
	PathUpdates  []PathMimeUpdate
}

// PathMimeUpdate carries a best-effort mime_type write for one path
// row; failures here never fail the surrounding batch.
type PathMimeUpdate struct {
	MediumHash string
	PathBytes  []byte
	MimeType   string
}

// CommitBatch applies every InodeResult in a single transaction:
// per-inode status/error/blob/processed_at update, per-blob hardlink
// upsert, and per-path mime_type update. Either the whole batch lands
// or none of it does — per spec.md §4.6 this is safe because the
// filesystem side effects (blob publish, hardlink fan-out) already
// happened and are themselves idempotent, so a rolled-back commit just
// means a future retry re-discovers the already-published blob.
func CommitBatch(ctx context.Context, beginner Beginner, results []InodeResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch commit: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, r := range results {
		if err := updateInode(ctx, tx, r, now); err != nil {
			return err
		}
		if r.BlobID != "" && r.NewHardlinks != 0 {
			if err := upsertBlob(ctx, tx, r.BlobID, r.NewHardlinks); err != nil {
				return err
			}
		}
		for _, pu := range r.PathUpdates {
			// Best-effort per spec.md §4.6: mime_type is cosmetic, so each
			// update runs in its own savepoint and a failure is discarded
			// without aborting the surrounding transaction.
			sp, err := tx.Begin(ctx)
			if err != nil {
				continue
			}
			if _, err := sp.Exec(ctx, `UPDATE paths SET mime_type = $3
				WHERE medium_hash = $1 AND path_bytes = $2`,
				pu.MediumHash, pu.PathBytes, pu.MimeType); err != nil {
				_ = sp.Rollback(ctx)
				continue
			}
			_ = sp.Commit(ctx)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func updateInode(ctx context.Context, tx Tx, r InodeResult, now time.Time) error {
	var errorType *string
	if r.ErrorType != ntt.ErrorTypeNone {
		s := string(r.ErrorType)
		errorType = &s
	}
	var blobID *string
	if r.BlobID != "" {
		blobID = &r.BlobID
	}

	sql := `UPDATE inodes SET
		status = $4, error_type = $5, blobid = $6, processed_at = $7,
		claimed_by = NULL, claimed_at = NULL`
	args := []any{r.MediumHash, r.Device, r.InodeNumber, string(r.Status), errorType, blobID, now}

	if r.NewError != "" {
		sql += `, errors = (array_append(errors, $8))[
			greatest(cardinality(array_append(errors, $8)) - $9 + 1, 1):
		]`
		args = append(args, r.NewError, ntt.MaxInodeErrors)
	}
	sql += ` WHERE medium_hash = $1 AND device = $2 AND inode_number = $3`

	_, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update inode %s/%d/%d: %w", r.MediumHash, r.Device, r.InodeNumber, err)
	}
	return nil
}

func upsertBlob(ctx context.Context, tx Tx, blobID string, nHardlinks int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO blobs (blobid, n_hardlinks) VALUES ($1, $2)
		ON CONFLICT (blobid) DO UPDATE SET n_hardlinks = blobs.n_hardlinks + excluded.n_hardlinks`,
		blobID, nHardlinks)
	if err != nil {
		return fmt.Errorf("upsert blob %s: %w", blobID, err)
	}
	return nil
}
