package catalog

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a processing job.
type JobStatus string

const (
	JobPending           JobStatus = "pending"
	JobDownloading       JobStatus = "downloading"
	JobChunking          JobStatus = "chunking"
	JobTranscribing      JobStatus = "transcribing"
	JobGeneratingContent JobStatus = "generating_content"
	JobProcessing        JobStatus = "processing"
	JobCompleted         JobStatus = "completed"
	JobFailed            JobStatus = "failed"
)

// JobTypeTranscription is the only job type the pipeline currently runs.
const JobTypeTranscription = "transcription_and_content"

// CancelledByAdminMessage is the error message recorded when an admin cancels a job.
const CancelledByAdminMessage = "cancelled by admin"

var allJobStatuses = []JobStatus{
	JobPending,
	JobDownloading,
	JobChunking,
	JobTranscribing,
	JobGeneratingContent,
	JobProcessing,
	JobCompleted,
	JobFailed,
}

var cancellableStatuses = map[JobStatus]struct{}{
	JobPending:           {},
	JobDownloading:       {},
	JobChunking:          {},
	JobTranscribing:      {},
	JobGeneratingContent: {},
}

// AllJobStatuses returns every known status in lifecycle order.
func AllJobStatuses() []JobStatus {
	out := make([]JobStatus, len(allJobStatuses))
	copy(out, allJobStatuses)
	return out
}

// ParseJobStatus validates a status string.
func ParseJobStatus(value string) (JobStatus, bool) {
	candidate := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allJobStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status ends a job.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IsCancellable reports whether an admin may cancel a job in this status.
func (s JobStatus) IsCancellable() bool {
	_, ok := cancellableStatuses[s]
	return ok
}

// AudiobookStatus is the catalog visibility state of an audiobook.
type AudiobookStatus string

const (
	AudiobookDraft      AudiobookStatus = "draft"
	AudiobookProcessing AudiobookStatus = "processing"
	AudiobookActive     AudiobookStatus = "active"
	AudiobookInactive   AudiobookStatus = "inactive"
)

// Job is a processing job persisted in SQLite.
type Job struct {
	ID            int64
	AudiobookID   int64
	JobType       string
	Status        JobStatus
	Progress      int
	ErrorMessage  string
	Metadata      Metadata
	RunID         string
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Audiobook is the catalog entry the pipeline enriches.
type Audiobook struct {
	ID            int64
	Title         string
	Author        string
	Description   string
	AISummary     string
	Categories    []string
	Keywords      []string
	Status        AudiobookStatus
	FileBucket    string
	FileKey       string
	FileURL       string
	FileSizeBytes int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transcription is the persisted transcript for an audiobook.
type Transcription struct {
	ID               int64
	AudiobookID      int64
	JobID            int64
	FullText         string
	WordCount        int
	DurationSeconds  float64
	ConfidenceScore  float64
	ProcessingTimeMs int64
	CreatedAt        time.Time
}

// GeneratedContent is the AI-derived slice of an audiobook.
type GeneratedContent struct {
	Description string
	Summary     string
	Categories  []string
	Keywords    []string
}

// NewJob describes a job to insert.
type NewJob struct {
	AudiobookID int64
	JobType     string
	Metadata    Metadata
}

// JobFilter narrows job listings.
type JobFilter struct {
	Statuses    []JobStatus
	AudiobookID int64
	Limit       int
	Offset      int
}

// JobPage is one page of a job listing plus aggregate counts.
type JobPage struct {
	Jobs   []*Job
	Total  int
	Counts map[JobStatus]int
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Active    int
	Failed    int
	Completed int
}

// ReclaimResult lists the jobs touched by a stale-run sweep.
type ReclaimResult struct {
	Requeued []int64
	Failed   []int64
}
