package db

import (
	"context"
	"fmt"

	"github.com/vm-wylbur/ntt-sub000"
)

// FailureCount is one row of the (status, error_type) histogram the
// recovery tool's list-failures command prints (spec.md §4.7).
type FailureCount struct {
	Status    ntt.Status
	ErrorType ntt.ErrorType
	Count     int64
}

// ListFailures groups failed inodes for mediumHash by (status,
// error_type), sorted by count descending.
func ListFailures(ctx context.Context, q Querier, mediumHash string) ([]FailureCount, error) {
	rows, err := q.Query(ctx, `
		SELECT status, error_type, count(*)
		FROM inodes
		WHERE medium_hash = $1 AND status IN ('failed_retryable', 'failed_permanent')
		GROUP BY status, error_type
		ORDER BY count(*) DESC`, mediumHash)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []FailureCount
	for rows.Next() {
		var fc FailureCount
		var status, errorType string
		if err := rows.Scan(&status, &errorType, &fc.Count); err != nil {
			return nil, fmt.Errorf("list failures scan: %w", err)
		}
		fc.Status = ntt.Status(status)
		fc.ErrorType = ntt.ErrorType(errorType)
		out = append(out, fc)
	}
	return out, rows.Err()
}

// CountResettable reports how many rows ResetFailures would touch,
// for --dry-run.
func CountResettable(ctx context.Context, q Querier, mediumHash string, errorType ntt.ErrorType) (int64, error) {
	var n int64
	row := q.QueryRow(ctx, `
		SELECT count(*) FROM inodes
		WHERE medium_hash = $1 AND status = 'failed_retryable' AND error_type = $2`,
		mediumHash, string(errorType))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count resettable: %w", err)
	}
	return n, nil
}

// ResetFailures clears every failed_retryable inode matching
// (mediumHash, errorType) back to pending, per spec.md §4.7. Only
// failed_retryable rows are eligible — failed_permanent rows require
// operator judgment beyond a blind reset (spec.md §7). ClaimBatch also
// claims unclaimed failed_retryable rows, so a row may be picked up by
// a live worker before or after this reset runs; a row currently
// claimed by a worker is reset along with the rest.
func ResetFailures(ctx context.Context, q Querier, mediumHash string, errorType ntt.ErrorType) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE inodes SET
			status = 'pending', error_type = NULL, errors = '{}',
			claimed_by = NULL, claimed_at = NULL, blobid = NULL, processed_at = NULL
		WHERE medium_hash = $1 AND status = 'failed_retryable' AND error_type = $2`,
		mediumHash, string(errorType))
	if err != nil {
		return 0, fmt.Errorf("reset failures: %w", err)
	}
	return tag.RowsAffected(), nil
}
