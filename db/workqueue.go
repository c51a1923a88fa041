package db

import (
	"context"
	"fmt"
	"time"

	"github.com/vm-wylbur/ntt-sub000"
)

// DefaultStaleClaimTimeout is the age at which a claimed-but-unfinished
// inode becomes eligible for re-claim by another worker (spec.md §5).
const DefaultStaleClaimTimeout = time.Hour

// ClaimedInode pairs an Inode with the Path rows enumeration recorded
// for it, which is everything the analyzer (C5) needs.
type ClaimedInode struct {
	Inode ntt.Inode
	Paths []ntt.Path
}

// ClaimBatch atomically claims up to batchSize pending/failed_retryable
// inodes for mediumHash, skipping rows already claimed by a live
// worker. It is the sole mutation the work-claim coordinator performs;
// the UPDATE ... RETURNING shape means the claim and the read of the
// claimed rows happen in one round trip, so no other worker can see a
// half-claimed batch.
func ClaimBatch(ctx context.Context, q Querier, mediumHash, workerID string, batchSize int, staleTimeout time.Duration) ([]ClaimedInode, error) {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleClaimTimeout
	}

	rows, err := q.Query(ctx, claimBatchSQL, mediumHash, workerID, batchSize, staleTimeout)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var inodes []ntt.Inode
	for rows.Next() {
		var in ntt.Inode
		var blobID, mimeType, claimedBy, errorType *string
		if err := rows.Scan(
			&in.MediumHash, &in.Device, &in.InodeNumber, &in.Size, &in.Nlink,
			&in.Mtime, &in.FsType, &blobID, &mimeType, &in.ProcessedAt,
			&claimedBy, &in.ClaimedAt, &in.Errors, &in.Status, &errorType,
		); err != nil {
			return nil, fmt.Errorf("claim batch scan: %w", err)
		}
		if blobID != nil {
			in.BlobID = *blobID
		}
		if mimeType != nil {
			in.MimeType = *mimeType
		}
		if claimedBy != nil {
			in.ClaimedBy = *claimedBy
		}
		if errorType != nil {
			in.ErrorType = ntt.ErrorType(*errorType)
		}
		inodes = append(inodes, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim batch rows: %w", err)
	}

	if len(inodes) == 0 {
		return nil, nil
	}
	return attachPaths(ctx, q, mediumHash, inodes)
}

// claimBatchSQL prunes to the single target partition via the
// medium_hash equality predicate, which the planner resolves against
// the per-partition (status, claimed_by, claimed_at) index created by
// EnsureMediumPartition.
const claimBatchSQL = `
UPDATE inodes
SET claimed_by = $2, claimed_at = now()
WHERE medium_hash = $1
  AND status IN ('pending', 'failed_retryable')
  AND (claimed_by IS NULL OR claimed_at < now() - $4::interval)
  AND (medium_hash, device, inode_number) IN (
    SELECT medium_hash, device, inode_number FROM inodes
    WHERE medium_hash = $1
      AND status IN ('pending', 'failed_retryable')
      AND (claimed_by IS NULL OR claimed_at < now() - $4::interval)
    ORDER BY device, inode_number
    LIMIT $3
    FOR UPDATE SKIP LOCKED
  )
RETURNING medium_hash, device, inode_number, size, nlink, mtime, fs_type,
  blobid, mime_type, processed_at, claimed_by, claimed_at, errors, status, error_type
`

func attachPaths(ctx context.Context, q Querier, mediumHash string, inodes []ntt.Inode) ([]ClaimedInode, error) {
	byInode := make(map[[2]uint64][]ntt.Path, len(inodes))

	devices := make([]uint64, len(inodes))
	inodeNumbers := make([]uint64, len(inodes))
	for i, in := range inodes {
		devices[i] = in.Device
		inodeNumbers[i] = in.InodeNumber
	}

	rows, err := q.Query(ctx, pathsForInodesSQL, mediumHash, devices, inodeNumbers)
	if err != nil {
		return nil, fmt.Errorf("load paths: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p ntt.Path
		var excludeReason, mimeType *string
		if err := rows.Scan(&p.MediumHash, &p.PathBytes, &p.Device, &p.InodeNumber, &mimeType, &excludeReason); err != nil {
			return nil, fmt.Errorf("load paths scan: %w", err)
		}
		if mimeType != nil {
			p.MimeType = *mimeType
		}
		if excludeReason != nil {
			p.ExcludeReason = *excludeReason
		}
		key := [2]uint64{p.Device, p.InodeNumber}
		byInode[key] = append(byInode[key], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load paths rows: %w", err)
	}

	claimed := make([]ClaimedInode, 0, len(inodes))
	for _, in := range inodes {
		claimed = append(claimed, ClaimedInode{
			Inode: in,
			Paths: byInode[[2]uint64{in.Device, in.InodeNumber}],
		})
	}
	return claimed, nil
}

// pathsForInodesSQL loads only the path rows for the claimed batch's
// (device, inode_number) pairs, passed as two parallel arrays and
// paired back up with unnest — a medium can have millions of paths,
// and a 100-inode batch claim must not scan all of them.
const pathsForInodesSQL = `
SELECT medium_hash, path_bytes, device, inode_number, mime_type, exclude_reason
FROM paths
WHERE medium_hash = $1
  AND (device, inode_number) IN (
    SELECT d, i FROM unnest($2::bigint[], $3::bigint[]) AS claimed(d, i)
  )
`

// ReleaseClaim clears claimed_by/claimed_at for one inode, used by the
// plan executor when a filesystem-phase error means the row must be
// retried by whichever worker claims it next (spec.md §4.6).
func ReleaseClaim(ctx context.Context, q Querier, mediumHash string, device, inodeNumber uint64) error {
	_, err := q.Exec(ctx, `
		UPDATE inodes SET claimed_by = NULL, claimed_at = NULL
		WHERE medium_hash = $1 AND device = $2 AND inode_number = $3`,
		mediumHash, device, inodeNumber)
	return err
}
