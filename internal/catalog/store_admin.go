package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RetryJob resets a failed job to pending so the whole pipeline runs again,
// and flips its audiobook back to processing.
func (s *Store) RetryJob(ctx context.Context, id int64) (*Job, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := loadJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.Status != JobFailed {
			return fmt.Errorf("%w: job %d is %s, only failed jobs can be retried", ErrInvalidTransition, id, job.Status)
		}
		now := s.timestamp()
		patch, err := Metadata{
			MetaRetryCount:  job.Metadata.Int64(MetaRetryCount) + 1,
			MetaRetriedAt:   now,
			MetaRunAttempts: 0,
			MetaCancelledAt: nil,
			MetaErrorKind:   nil,
		}.encode()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE processing_jobs
             SET status = ?, progress = 0, error_message = NULL, completed_at = NULL,
                 run_id = NULL, last_heartbeat = NULL,
                 metadata_json = json_patch(metadata_json, ?), updated_at = ?
             WHERE id = ? AND status = ?`,
			JobPending, patch, now, id, JobFailed,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w (audiobook %d)", ErrActiveJobExists, job.AudiobookID)
			}
			return fmt.Errorf("retry job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE audiobooks SET status = ?, updated_at = ? WHERE id = ?`,
			AudiobookProcessing, now, job.AudiobookID,
		); err != nil {
			return fmt.Errorf("retry audiobook status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// CancelJob fails a cancellable job with the admin cancellation message and
// reverts its audiobook to draft. A run still working on the job is not
// interrupted; its later writes are rejected by the run guard.
func (s *Store) CancelJob(ctx context.Context, id int64) (*Job, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := loadJobTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !job.Status.IsCancellable() {
			return fmt.Errorf("%w: job %d is %s and cannot be cancelled", ErrInvalidTransition, id, job.Status)
		}
		now := s.timestamp()
		patch, err := Metadata{MetaCancelledAt: now}.encode()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE processing_jobs
             SET status = ?, error_message = ?, run_id = NULL, last_heartbeat = NULL,
                 metadata_json = json_patch(metadata_json, ?), completed_at = ?, updated_at = ?
             WHERE id = ?`,
			JobFailed, CancelledByAdminMessage, patch, now, now, id,
		); err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE audiobooks SET status = ?, updated_at = ? WHERE id = ?`,
			AudiobookDraft, now, job.AudiobookID,
		); err != nil {
			return fmt.Errorf("cancel audiobook status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// ForceFailActive fails whatever non-terminal job the audiobook has so a new
// one can be created. It returns the id of the failed job, or 0 when there was none.
func (s *Store) ForceFailActive(ctx context.Context, audiobookID int64, reason string) (int64, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "superseded by a forced job"
	}
	var failedID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		failedID = 0
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM processing_jobs WHERE audiobook_id = ? AND status NOT IN `+terminalStatusSQL+` LIMIT 1`,
			audiobookID,
		).Scan(&failedID)
		if errors.Is(err, sql.ErrNoRows) {
			failedID = 0
			return nil
		}
		if err != nil {
			return fmt.Errorf("find active job: %w", err)
		}
		now := s.timestamp()
		_, err = tx.ExecContext(ctx,
			`UPDATE processing_jobs
             SET status = ?, error_message = ?, run_id = NULL, last_heartbeat = NULL, completed_at = ?, updated_at = ?
             WHERE id = ?`,
			JobFailed, reason, now, now, failedID,
		)
		if err != nil {
			return fmt.Errorf("force fail job: %w", err)
		}
		return nil
	})
	return failedID, err
}

func loadJobTx(ctx context.Context, tx *sql.Tx, id int64) (*Job, error) {
	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load processing job: %w", err)
	}
	return job, nil
}
