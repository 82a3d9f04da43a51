package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a processing job in a transport-friendly format.
type Job struct {
	ID            int64          `json:"id"`
	AudiobookID   int64          `json:"audiobookId"`
	JobType       string         `json:"jobType"`
	Status        string         `json:"status"`
	Progress      int            `json:"progress"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	RunID         string         `json:"runId,omitempty"`
	LastHeartbeat string         `json:"lastHeartbeat,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	CompletedAt   string         `json:"completedAt,omitempty"`
}

// Audiobook is the catalog entry as exposed to admins.
type Audiobook struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Author        string   `json:"author,omitempty"`
	Description   string   `json:"description,omitempty"`
	AISummary     string   `json:"aiSummary,omitempty"`
	Categories    []string `json:"categories"`
	Keywords      []string `json:"keywords"`
	Status        string   `json:"status"`
	FileURL       string   `json:"fileUrl,omitempty"`
	SignedURL     string   `json:"signedUrl,omitempty"`
	FileSizeBytes int64    `json:"fileSizeBytes"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

// Transcription summarizes the stored transcript without its full text.
type Transcription struct {
	ID               int64   `json:"id"`
	JobID            int64   `json:"jobId"`
	WordCount        int     `json:"wordCount"`
	DurationSeconds  float64 `json:"durationSeconds"`
	ConfidenceScore  float64 `json:"confidenceScore"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
	Language         string  `json:"language,omitempty"`
	LanguageName     string  `json:"languageName,omitempty"`
	Excerpt          string  `json:"excerpt,omitempty"`
	CreatedAt        string  `json:"createdAt,omitempty"`
}

// AudiobookDetail bundles an audiobook with its pipeline state.
type AudiobookDetail struct {
	Audiobook     Audiobook      `json:"audiobook"`
	Transcription *Transcription `json:"transcription,omitempty"`
	ActiveJob     *Job           `json:"activeJob,omitempty"`
}

// JobQuery filters job listings.
type JobQuery struct {
	Statuses    []string
	AudiobookID int64
	Limit       int
	Offset      int
}

// JobListResponse is one page of jobs with counts per status.
type JobListResponse struct {
	Jobs   []Job          `json:"jobs"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Counts map[string]int `json:"counts"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// CreateJobRequest asks for a new job on an existing audiobook.
type CreateJobRequest struct {
	AudiobookID int64 `json:"audiobookId"`
	Force       bool  `json:"force"`
}

// IngestRequest describes an uploaded audio file.
type IngestRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	FileName string `json:"fileName"`
}

// IngestResult reports what an ingest created.
type IngestResult struct {
	Audiobook Audiobook `json:"audiobook"`
	Job       *Job      `json:"job,omitempty"`
}

// WorkflowStatus summarizes coordinator execution state.
type WorkflowStatus struct {
	Running    bool             `json:"running"`
	Workers    int              `json:"workers"`
	ActiveRuns map[int64]string `json:"activeRuns"`
	JobStats   map[string]int   `json:"jobStats"`
	LastError  string           `json:"lastError,omitempty"`
	LastJob    *Job             `json:"lastJob,omitempty"`
}

// HealthStatus mirrors catalog.HealthSummary.
type HealthStatus struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Health       HealthStatus   `json:"health"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
