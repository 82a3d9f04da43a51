package api

import (
	"time"

	"lectern/internal/catalog"
	"lectern/internal/workflow"
)

const excerptRunes = 280

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromJob converts a catalog job to its API representation.
func FromJob(job *catalog.Job) Job {
	if job == nil {
		return Job{}
	}
	meta := map[string]any(job.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	return Job{
		ID:            job.ID,
		AudiobookID:   job.AudiobookID,
		JobType:       job.JobType,
		Status:        string(job.Status),
		Progress:      job.Progress,
		ErrorMessage:  job.ErrorMessage,
		Metadata:      meta,
		RunID:         job.RunID,
		LastHeartbeat: formatTimePtr(job.LastHeartbeat),
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
		CompletedAt:   formatTimePtr(job.CompletedAt),
	}
}

// FromJobs converts a slice of jobs.
func FromJobs(jobs []*catalog.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromAudiobook converts a catalog audiobook. signedURL may be empty.
func FromAudiobook(book *catalog.Audiobook, signedURL string) Audiobook {
	if book == nil {
		return Audiobook{}
	}
	categories := book.Categories
	if categories == nil {
		categories = []string{}
	}
	keywords := book.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return Audiobook{
		ID:            book.ID,
		Title:         book.Title,
		Author:        book.Author,
		Description:   book.Description,
		AISummary:     book.AISummary,
		Categories:    categories,
		Keywords:      keywords,
		Status:        string(book.Status),
		FileURL:       book.FileURL,
		SignedURL:     signedURL,
		FileSizeBytes: book.FileSizeBytes,
		CreatedAt:     formatTime(book.CreatedAt),
		UpdatedAt:     formatTime(book.UpdatedAt),
	}
}

// FromTranscription summarizes a stored transcript.
func FromTranscription(tr *catalog.Transcription) *Transcription {
	if tr == nil {
		return nil
	}
	excerpt := []rune(tr.FullText)
	if len(excerpt) > excerptRunes {
		excerpt = append(excerpt[:excerptRunes], []rune("...")...)
	}
	return &Transcription{
		ID:               tr.ID,
		JobID:            tr.JobID,
		WordCount:        tr.WordCount,
		DurationSeconds:  tr.DurationSeconds,
		ConfidenceScore:  tr.ConfidenceScore,
		ProcessingTimeMs: tr.ProcessingTimeMs,
		Excerpt:          string(excerpt),
		CreatedAt:        formatTime(tr.CreatedAt),
	}
}

// MergeJobCounts returns counts for every known status, zero-filled.
func MergeJobCounts(counts map[catalog.JobStatus]int) map[string]int {
	out := make(map[string]int, len(catalog.AllJobStatuses()))
	for _, status := range catalog.AllJobStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}

// FromHealth converts the catalog health summary.
func FromHealth(h catalog.HealthSummary) HealthStatus {
	return HealthStatus{
		Total:     h.Total,
		Pending:   h.Pending,
		Active:    h.Active,
		Failed:    h.Failed,
		Completed: h.Completed,
	}
}

// FromStatusSummary converts the coordinator status.
func FromStatusSummary(s workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    s.Running,
		Workers:    s.Workers,
		ActiveRuns: s.ActiveRuns,
		JobStats:   MergeJobCounts(s.JobStats),
		LastError:  s.LastError,
	}
	if status.ActiveRuns == nil {
		status.ActiveRuns = map[int64]string{}
	}
	if s.LastJob != nil {
		job := FromJob(s.LastJob)
		status.LastJob = &job
	}
	return status
}
