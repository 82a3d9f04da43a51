package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = "id, audiobook_id, job_type, status, progress, error_message, metadata_json, run_id, last_heartbeat, created_at, updated_at, completed_at"

const audiobookColumns = "id, title, author, description, ai_summary, categories_json, keywords_json, status, file_bucket, file_key, file_url, file_size_bytes, created_at, updated_at"

const transcriptionColumns = "id, audiobook_id, job_id, full_text, word_count, duration_seconds, confidence_score, processing_time_ms, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		statusStr    string
		errorMessage sql.NullString
		metadataRaw  sql.NullString
		runID        sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.AudiobookID,
		&job.JobType,
		&statusStr,
		&job.Progress,
		&errorMessage,
		&metadataRaw,
		&runID,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(statusStr)
	job.ErrorMessage = errorMessage.String
	job.Metadata = decodeMetadata(metadataRaw.String)
	job.RunID = runID.String
	job.CreatedAt, _ = parseTimeString(createdRaw)
	job.UpdatedAt, _ = parseTimeString(updatedRaw)
	job.LastHeartbeat = parseNullableTime(heartbeatRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	return &job, nil
}

func scanAudiobook(scanner rowScanner) (*Audiobook, error) {
	var (
		book          Audiobook
		description   sql.NullString
		summary       sql.NullString
		categoriesRaw string
		keywordsRaw   string
		statusStr     string
		fileBucket    sql.NullString
		fileKey       sql.NullString
		fileURL       sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&description,
		&summary,
		&categoriesRaw,
		&keywordsRaw,
		&statusStr,
		&fileBucket,
		&fileKey,
		&fileURL,
		&book.FileSizeBytes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	book.Description = description.String
	book.AISummary = summary.String
	book.Categories = decodeStringList(categoriesRaw)
	book.Keywords = decodeStringList(keywordsRaw)
	book.Status = AudiobookStatus(statusStr)
	book.FileBucket = fileBucket.String
	book.FileKey = fileKey.String
	book.FileURL = fileURL.String
	book.CreatedAt, _ = parseTimeString(createdRaw)
	book.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &book, nil
}

func scanTranscription(scanner rowScanner) (*Transcription, error) {
	var (
		tr         Transcription
		jobID      sql.NullInt64
		createdRaw string
	)
	if err := scanner.Scan(
		&tr.ID,
		&tr.AudiobookID,
		&jobID,
		&tr.FullText,
		&tr.WordCount,
		&tr.DurationSeconds,
		&tr.ConfidenceScore,
		&tr.ProcessingTimeMs,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	tr.JobID = jobID.Int64
	tr.CreatedAt, _ = parseTimeString(createdRaw)
	return &tr, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func encodeStringList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStringList(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// terminalStatusSQL is the SQL list literal used by guarded updates.
const terminalStatusSQL = "('completed', 'failed')"
