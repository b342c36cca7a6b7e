package data

import (
	"context"
	"fmt"
	"time"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// FailStaleWaiting fails waiting jobs older than maxAge that were never
// picked up, in batches to avoid long locks.
func (r *JobRepo) FailStaleWaiting(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	cutoff := r.timeProvider.Now().Add(-maxAge).UTC()
	now := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    last_error = 'stale: never picked up within retention window',
		    completed_at = $1,
		    updated_at = $1
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'waiting' AND created_at < $2
			LIMIT $3
		)
	`, now, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("fail stale waiting jobs: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale waiting rows affected: %w", err)
	}
	return ra, nil
}

// DeleteOldTerminal deletes terminal jobs past the retention window in batches.
func (r *JobRepo) DeleteOldTerminal(
	ctx context.Context,
	status model.JobStatus,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("status %s is not terminal", status)
	}
	if batchSize < 1 {
		batchSize = 1
	}
	cutoff := r.timeProvider.Now().Add(-maxAge).UTC()

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = $1 AND completed_at IS NOT NULL AND completed_at < $2
			LIMIT $3
		)
	`, status, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old %s jobs: %w", status, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old %s rows affected: %w", status, err)
	}
	return ra, nil
}
