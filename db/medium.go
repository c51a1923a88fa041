package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vm-wylbur/ntt-sub000"
)

// HighErrorRateThreshold and MinInodesForErrorRate gate the
// high_error_rate flag the medium-level aggregator (C8) sets: more than
// this fraction of processed inodes failed, and at least this many
// inodes have been processed, so a handful of early failures on a
// mostly-empty medium doesn't trip it.
const (
	HighErrorRateThreshold = 0.10
	MinInodesForErrorRate  = 100
)

// RecordDiagnosticEvent appends one queued diagnostic event (C2) to a
// medium's problems.diagnostic_events, in its own transaction so it
// never extends the claim-holding transaction's lock lifetime (spec.md
// §4.2, §5).
func RecordDiagnosticEvent(ctx context.Context, q Querier, mediumHash string, ev ntt.DiagnosticEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal diagnostic event: %w", err)
	}
	_, err = q.Exec(ctx, `
		UPDATE media SET problems = jsonb_set(
			problems,
			'{diagnostic_events}',
			coalesce(problems->'diagnostic_events', '[]'::jsonb) || $2::jsonb,
			true
		) WHERE medium_hash = $1`,
		mediumHash, payload)
	if err != nil {
		return fmt.Errorf("record diagnostic event: %w", err)
	}
	return nil
}

// MarkBeyondEOF idempotently sets problems.beyond_eof_detected=true.
// Safe to call repeatedly — a subsequent call is a no-op write.
func MarkBeyondEOF(ctx context.Context, q Querier, mediumHash string) error {
	_, err := q.Exec(ctx, `
		UPDATE media SET problems = jsonb_set(problems, '{beyond_eof_detected}', 'true', true)
		WHERE medium_hash = $1 AND coalesce((problems->>'beyond_eof_detected')::boolean, false) = false`,
		mediumHash)
	return err
}

// CheckAndMarkHighErrorRate reads the medium's current processed and
// error counts and, if the threshold is crossed and the flag is not
// already set, records it once with the observed rate and count.
func CheckAndMarkHighErrorRate(ctx context.Context, q Querier, mediumHash string) error {
	var processed, failed int64
	row := q.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status != 'pending'),
		       count(*) FILTER (WHERE status IN ('failed_retryable', 'failed_permanent'))
		FROM inodes WHERE medium_hash = $1`, mediumHash)
	if err := row.Scan(&processed, &failed); err != nil {
		return fmt.Errorf("count inode outcomes: %w", err)
	}

	if processed < MinInodesForErrorRate {
		return nil
	}
	rate := float64(failed) / float64(processed)
	if rate <= HighErrorRateThreshold {
		return nil
	}

	hr := ntt.HighErrorRate{
		RatePercent:     rate * 100,
		DetectedAtCount: processed,
		DetectedAt:      time.Now(),
	}
	payload, err := json.Marshal(hr)
	if err != nil {
		return fmt.Errorf("marshal high error rate: %w", err)
	}
	_, err = q.Exec(ctx, `
		UPDATE media SET problems = jsonb_set(problems, '{high_error_rate}', $2::jsonb, true)
		WHERE medium_hash = $1 AND problems->'high_error_rate' IS NULL`,
		mediumHash, payload)
	if err != nil {
		return fmt.Errorf("mark high error rate: %w", err)
	}
	return nil
}

// Health looks up a medium's current health classification, used by
// the mount coordinator (C4) before invoking the privileged mount
// helper.
func Health(ctx context.Context, q Querier, mediumHash string) (ntt.Health, error) {
	var health *string
	row := q.QueryRow(ctx, `SELECT health FROM media WHERE medium_hash = $1`, mediumHash)
	if err := row.Scan(&health); err != nil {
		return "", fmt.Errorf("lookup medium health: %w", err)
	}
	if health == nil {
		return ntt.HealthUnknown, nil
	}
	return ntt.Health(*health), nil
}

// ImagePath looks up the image file a medium was imaged to, so the
// worker loop can hand it to the mount coordinator without the
// operator passing it on every invocation.
func ImagePath(ctx context.Context, q Querier, mediumHash string) (string, error) {
	var path string
	row := q.QueryRow(ctx, `SELECT image_path FROM media WHERE medium_hash = $1`, mediumHash)
	if err := row.Scan(&path); err != nil {
		return "", fmt.Errorf("lookup medium image path: %w", err)
	}
	return path, nil
}
