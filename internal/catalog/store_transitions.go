package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Writes in this file are guarded by run ownership: they only apply while the
// job is non-terminal and still assigned to runID. A job that was cancelled
// or reclaimed while a run was mid-flight rejects that run's late writes with
// ErrJobNotActive.

const runGuard = ` AND run_id = ? AND status NOT IN ` + terminalStatusSQL

// UpdateJobProgress sets status, raises progress and merges patch into the job metadata.
func (s *Store) UpdateJobProgress(ctx context.Context, id int64, runID string, status JobStatus, progress int, patch Metadata) error {
	if status.IsTerminal() {
		return fmt.Errorf("%w: use CompleteJob or FailJob for %s", ErrInvalidTransition, status)
	}
	encoded, err := patch.encode()
	if err != nil {
		return err
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_jobs
         SET status = ?, progress = MAX(progress, ?), metadata_json = json_patch(metadata_json, ?),
             last_heartbeat = ?, updated_at = ?
         WHERE id = ?`+runGuard,
		status, clampProgress(progress), encoded, now, now, id, runID,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return requireRow(res, ErrJobNotActive)
}

// MergeJobMetadata merges patch into the job metadata without touching status or progress.
func (s *Store) MergeJobMetadata(ctx context.Context, id int64, runID string, patch Metadata) error {
	encoded, err := patch.encode()
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_jobs SET metadata_json = json_patch(metadata_json, ?), updated_at = ? WHERE id = ?`+runGuard,
		encoded, s.timestamp(), id, runID,
	)
	if err != nil {
		return fmt.Errorf("merge job metadata: %w", err)
	}
	return requireRow(res, ErrJobNotActive)
}

// Heartbeat refreshes the liveness timestamp for a running job.
func (s *Store) Heartbeat(ctx context.Context, id int64, runID string) error {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`+runGuard,
		now, now, id, runID,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return requireRow(res, ErrJobNotActive)
}

// CompleteJob marks the job completed at 100% and merges the final metadata.
func (s *Store) CompleteJob(ctx context.Context, id int64, runID string, patch Metadata) error {
	encoded, err := patch.encode()
	if err != nil {
		return err
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_jobs
         SET status = ?, progress = 100, error_message = NULL, metadata_json = json_patch(metadata_json, ?),
             last_heartbeat = NULL, completed_at = ?, updated_at = ?
         WHERE id = ?`+runGuard,
		JobCompleted, encoded, now, now, id, runID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res, ErrJobNotActive)
}

// FailJob marks the job failed. Progress keeps its last value.
func (s *Store) FailJob(ctx context.Context, id int64, runID, message string, patch Metadata) error {
	encoded, err := patch.encode()
	if err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "processing failed"
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_jobs
         SET status = ?, error_message = ?, metadata_json = json_patch(metadata_json, ?),
             last_heartbeat = NULL, completed_at = ?, updated_at = ?
         WHERE id = ?`+runGuard,
		JobFailed, message, encoded, now, now, id, runID,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res, ErrJobNotActive)
}

// SaveTranscriptionForRun stores the transcript for the job's audiobook,
// replacing any transcript from an earlier run.
func (s *Store) SaveTranscriptionForRun(ctx context.Context, jobID int64, runID string, tr Transcription) (*Transcription, error) {
	var saved *Transcription
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		audiobookID, err := ownedAudiobook(ctx, tx, jobID, runID)
		if err != nil {
			return err
		}
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcriptions (audiobook_id, job_id, full_text, word_count, duration_seconds, confidence_score, processing_time_ms, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(audiobook_id) DO UPDATE SET
                 job_id = excluded.job_id,
                 full_text = excluded.full_text,
                 word_count = excluded.word_count,
                 duration_seconds = excluded.duration_seconds,
                 confidence_score = excluded.confidence_score,
                 processing_time_ms = excluded.processing_time_ms,
                 created_at = excluded.created_at`,
			audiobookID, jobID, tr.FullText, tr.WordCount, tr.DurationSeconds, tr.ConfidenceScore, tr.ProcessingTimeMs, now,
		); err != nil {
			return fmt.Errorf("upsert transcription: %w", err)
		}
		saved, err = scanTranscription(tx.QueryRowContext(ctx,
			`SELECT `+transcriptionColumns+` FROM transcriptions WHERE audiobook_id = ?`, audiobookID))
		if err != nil {
			return fmt.Errorf("load transcription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ApplyGeneratedContentForRun writes generated content onto the job's
// audiobook and makes it active.
func (s *Store) ApplyGeneratedContentForRun(ctx context.Context, jobID int64, runID string, content GeneratedContent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		audiobookID, err := ownedAudiobook(ctx, tx, jobID, runID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE audiobooks
             SET description = ?, ai_summary = ?, categories_json = ?, keywords_json = ?, status = ?, updated_at = ?
             WHERE id = ?`,
			content.Description, nullableString(content.Summary),
			encodeStringList(content.Categories), encodeStringList(content.Keywords),
			AudiobookActive, s.timestamp(), audiobookID,
		)
		if err != nil {
			return fmt.Errorf("apply generated content: %w", err)
		}
		return requireRow(res, fmt.Errorf("%w: id %d", ErrAudiobookNotFound, audiobookID))
	})
}

// ReclaimStale releases jobs whose run stopped heartbeating before cutoff.
// Jobs under maxAttempts runs return to pending with their progress intact;
// the rest are failed.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (ReclaimResult, error) {
	var result ReclaimResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = ReclaimResult{}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, COALESCE(json_extract(metadata_json, '$.`+MetaRunAttempts+`'), 0)
             FROM processing_jobs
             WHERE run_id IS NOT NULL AND status NOT IN `+terminalStatusSQL+`
               AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			formatTime(cutoff),
		)
		if err != nil {
			return fmt.Errorf("find stale jobs: %w", err)
		}
		type stale struct {
			id       int64
			attempts int
		}
		var found []stale
		for rows.Next() {
			var item stale
			if err := rows.Scan(&item.id, &item.attempts); err != nil {
				rows.Close()
				return err
			}
			found = append(found, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := s.timestamp()
		for _, item := range found {
			if maxAttempts > 0 && item.attempts >= maxAttempts {
				msg := fmt.Sprintf("worker stopped responding after %d run attempts", item.attempts)
				if _, err := tx.ExecContext(ctx,
					`UPDATE processing_jobs
                     SET status = ?, error_message = ?, run_id = NULL, last_heartbeat = NULL, completed_at = ?, updated_at = ?
                     WHERE id = ?`,
					JobFailed, msg, now, now, item.id,
				); err != nil {
					return fmt.Errorf("fail stale job %d: %w", item.id, err)
				}
				result.Failed = append(result.Failed, item.id)
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE processing_jobs
                 SET status = ?, run_id = NULL, last_heartbeat = NULL, updated_at = ?
                 WHERE id = ?`,
				JobPending, now, item.id,
			); err != nil {
				return fmt.Errorf("requeue stale job %d: %w", item.id, err)
			}
			result.Requeued = append(result.Requeued, item.id)
		}
		return nil
	})
	return result, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ownedAudiobook(ctx context.Context, q queryRower, jobID int64, runID string) (int64, error) {
	var audiobookID int64
	err := q.QueryRowContext(ctx,
		`SELECT audiobook_id FROM processing_jobs WHERE id = ?`+runGuard, jobID, runID,
	).Scan(&audiobookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrJobNotActive
	}
	if err != nil {
		return 0, fmt.Errorf("check job ownership: %w", err)
	}
	return audiobookID, nil
}
