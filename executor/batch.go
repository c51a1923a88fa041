package executor

import (
	"context"

	"github.com/vm-wylbur/ntt-sub000/db"
)

// ReleaseFunc releases a claim back to pending/failed_retryable
// eligibility; backed by db.ReleaseClaim in production.
type ReleaseFunc func(ctx context.Context, mediumHash string, device, inodeNumber uint64) error

// RunBatch processes each ClaimedInode in order, calling executeFn for
// every inode to analyze it and run its filesystem phase, stopping
// early if cancel reports true between inodes (spec.md
// §4.6's SIGTERM/SIGINT handling — the currently processing inode
// always finishes before the loop checks cancel again).
//
// Inodes whose filesystem phase failed in a way that calls for a
// release (Outcome.Released) are released immediately rather than
// being added to the batch transaction, so CommitBatch only ever sees
// inodes that reached a real outcome.
func RunBatch(ctx context.Context, claimed []db.ClaimedInode, cancel func() bool, releaseFn ReleaseFunc, executeFn func(context.Context, db.ClaimedInode) (Outcome, error)) ([]db.InodeResult, error) {
	var results []db.InodeResult

	for _, ci := range claimed {
		if cancel() {
			if err := releaseFn(ctx, ci.Inode.MediumHash, ci.Inode.Device, ci.Inode.InodeNumber); err != nil {
				return results, err
			}
			continue
		}

		outcome, err := executeFn(ctx, ci)
		if err != nil || outcome.Released {
			if err := releaseFn(ctx, ci.Inode.MediumHash, ci.Inode.Device, ci.Inode.InodeNumber); err != nil {
				return results, err
			}
			continue
		}

		results = append(results, ToInodeResult(outcome))
	}

	return results, nil
}
