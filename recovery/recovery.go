// Package recovery implements the operator-facing recovery tool (C7):
// listing failure histograms and resetting failed_retryable inodes
// back to pending (spec.md §4.7).
package recovery

import (
	"context"
	"fmt"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/db"
)

// ListFailures returns the (status, error_type) histogram for
// mediumHash, sorted by count descending.
func ListFailures(ctx context.Context, q db.Querier, mediumHash string) ([]db.FailureCount, error) {
	return db.ListFailures(ctx, q, mediumHash)
}

// ResetResult is the outcome of a ResetFailures invocation, reported
// identically whether it was a dry run or not.
type ResetResult struct {
	MediumHash string
	ErrorType  ntt.ErrorType
	RowCount   int64
	DryRun     bool
}

// ResetFailures clears every failed_retryable inode for (mediumHash,
// errorType) back to pending. When dryRun is true, no mutation
// happens — RowCount reports what would have been affected.
func ResetFailures(ctx context.Context, q db.Querier, mediumHash string, errorType ntt.ErrorType, dryRun bool) (ResetResult, error) {
	if dryRun {
		n, err := db.CountResettable(ctx, q, mediumHash, errorType)
		if err != nil {
			return ResetResult{}, fmt.Errorf("count resettable: %w", err)
		}
		return ResetResult{MediumHash: mediumHash, ErrorType: errorType, RowCount: n, DryRun: true}, nil
	}

	n, err := db.ResetFailures(ctx, q, mediumHash, errorType)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset failures: %w", err)
	}
	return ResetResult{MediumHash: mediumHash, ErrorType: errorType, RowCount: n}, nil
}
