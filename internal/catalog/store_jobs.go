package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateJob inserts a pending job. At most one non-terminal job may exist per audiobook.
func (s *Store) CreateJob(ctx context.Context, req NewJob) (*Job, error) {
	if req.AudiobookID <= 0 {
		return nil, errors.New("audiobook id is required")
	}
	jobType := strings.TrimSpace(req.JobType)
	if jobType == "" {
		jobType = JobTypeTranscription
	}
	metadata, err := req.Metadata.encode()
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO processing_jobs (audiobook_id, job_type, status, progress, metadata_json, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)`,
		req.AudiobookID, jobType, JobPending, metadata, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w (audiobook %d)", ErrActiveJobExists, req.AudiobookID)
		}
		return nil, fmt.Errorf("insert processing job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("processing job id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get processing job: %w", err)
	}
	return job, nil
}

// ActiveJobForAudiobook returns the non-terminal job for an audiobook, or nil when none exists.
func (s *Store) ActiveJobForAudiobook(ctx context.Context, audiobookID int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM processing_jobs
         WHERE audiobook_id = ? AND status NOT IN `+terminalStatusSQL+`
         LIMIT 1`, audiobookID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job lookup: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first. Counts cover every status for the
// audiobook filter regardless of the status filter.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) (JobPage, error) {
	ctx = ensureContext(ctx)
	var (
		where []string
		args  []any
	)
	if filter.AudiobookID > 0 {
		where = append(where, "audiobook_id = ?")
		args = append(args, filter.AudiobookID)
	}
	scopeWhere := strings.Join(where, " AND ")
	scopeArgs := append([]any(nil), args...)

	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := JobPage{Counts: make(map[JobStatus]int)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM processing_jobs`+clause, args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count processing jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	listArgs := append(append([]any(nil), args...), limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		listArgs...)
	if err != nil {
		return page, fmt.Errorf("list processing jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return page, err
		}
		page.Jobs = append(page.Jobs, job)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}

	countQuery := `SELECT status, COUNT(1) FROM processing_jobs`
	if scopeWhere != "" {
		countQuery += " WHERE " + scopeWhere
	}
	countQuery += " GROUP BY status"
	counts, err := s.statusCounts(ctx, countQuery, scopeArgs...)
	if err != nil {
		return page, err
	}
	page.Counts = counts
	return page, nil
}

// ClaimNextPending assigns the oldest unowned pending job to runID and
// returns it. It returns nil when nothing is waiting.
func (s *Store) ClaimNextPending(ctx context.Context, runID string) (*Job, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("run id is required")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_jobs
         SET run_id = ?, last_heartbeat = ?, updated_at = ?,
             metadata_json = json_set(metadata_json, '$.`+MetaRunAttempts+`',
                 COALESCE(json_extract(metadata_json, '$.`+MetaRunAttempts+`'), 0) + 1)
         WHERE id = (
             SELECT id FROM processing_jobs
             WHERE status = ? AND run_id IS NULL
             ORDER BY created_at, id
             LIMIT 1
         ) AND run_id IS NULL`,
		runID, now, now, JobPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM processing_jobs WHERE run_id = ? LIMIT 1`, runID)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("load claimed job: %w", err)
	}
	return job, nil
}

func (s *Store) statusCounts(ctx context.Context, query string, args ...any) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[JobStatus(status)] = count
	}
	return counts, rows.Err()
}
