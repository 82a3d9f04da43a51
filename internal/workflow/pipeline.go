package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lectern/internal/catalog"
	"lectern/internal/content"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/transcription"
)

// Progress bands persisted by the coordinator. The transcription run reports
// 0..100 and is remapped into [transcribeStart, transcribeEnd].
const (
	progressDownloading   = 5
	transcribeStart       = 5
	transcribeEnd         = 65
	progressTranscribed   = 70
	progressGenerating    = 75
	progressContentStored = 90
	progressCompleted     = 100
)

const completedBy = "lecternd"

// runOutcome is what a successful pipeline run produced.
type runOutcome struct {
	transcriptionID int64
	title           string
}

// run carries per-run state shared by the pipeline steps.
type run struct {
	job     *catalog.Job
	runID   string
	started time.Time
	logger  *slog.Logger
	title   string
}

func (c *Coordinator) processJob(ctx context.Context, job *catalog.Job, runID string) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRunID(ctx, runID)
	r := &run{
		job:     job,
		runID:   runID,
		started: c.now(),
		logger:  logging.WithContext(ctx, c.logger).With(logging.Int64(logging.FieldAudiobookID, job.AudiobookID)),
	}
	r.logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int64("run_attempt", job.Metadata.Int64(catalog.MetaRunAttempts)),
	)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go c.heartbeat.StartLoop(hbCtx, &hbWG, job.ID, runID)

	outcome, err := c.execute(ctx, r)
	hbCancel()
	hbWG.Wait()

	if err != nil {
		c.handleFailure(ctx, r, err)
		return
	}

	elapsed := c.now().Sub(r.started)
	r.logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Int64("transcription_id", outcome.transcriptionID),
		logging.Duration("elapsed", elapsed),
	)
	c.setLastJob(ctx, job.ID)
	c.publish(ctx, events.ProcessingComplete, events.CompletePayload{
		AudiobookID:      job.AudiobookID,
		JobID:            job.ID,
		Title:            outcome.title,
		Success:          true,
		TranscriptionID:  outcome.transcriptionID,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}

func (c *Coordinator) execute(ctx context.Context, r *run) (runOutcome, error) {
	job := r.job
	book, err := c.store.GetAudiobook(ctx, job.AudiobookID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return runOutcome{}, services.Wrap(services.ErrNotFound, "setup", "load audiobook", "", err)
		}
		return runOutcome{}, err
	}
	r.title = book.Title

	bucket := job.Metadata.String(catalog.MetaBucket)
	if bucket == "" {
		bucket = book.FileBucket
	}
	if bucket == "" {
		bucket = c.cfg.Storage.Bucket
	}
	key := job.Metadata.String(catalog.MetaFilePath)
	if key == "" {
		key = book.FileKey
	}
	if strings.TrimSpace(key) == "" {
		return runOutcome{}, services.Wrap(services.ErrValidation, "setup", "resolve audio file", "audiobook has no uploaded file", nil)
	}

	if err := c.advance(ctx, r, catalog.JobDownloading, progressDownloading, "downloading", "Starting transcription", nil); err != nil {
		return runOutcome{}, err
	}

	observer := &progressObserver{c: c, ctx: ctx, r: r}
	result, err := c.transcriber.TranscribeFromStorage(ctx, bucket, key, job.ID, observer)
	if err != nil {
		return runOutcome{}, err
	}
	if err := observer.Err(); err != nil {
		return runOutcome{}, err
	}

	saved, err := c.store.SaveTranscriptionForRun(ctx, job.ID, r.runID, catalog.Transcription{
		FullText:         result.Text,
		WordCount:        result.WordCount,
		DurationSeconds:  result.DurationSeconds,
		ConfidenceScore:  result.Confidence,
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
	})
	if err != nil {
		return runOutcome{}, err
	}
	transcribed := catalog.Metadata{
		catalog.MetaTranscriptionID: saved.ID,
		catalog.MetaWordCount:       result.WordCount,
		catalog.MetaDurationSeconds: result.DurationSeconds,
		catalog.MetaConfidence:      result.Confidence,
		catalog.MetaChunkCount:      1,
	}
	if result.Language != "" {
		transcribed[catalog.MetaLanguage] = result.Language
	}
	if err := c.store.MergeJobMetadata(ctx, job.ID, r.runID, transcribed); err != nil {
		return runOutcome{}, err
	}
	if err := c.advance(ctx, r, catalog.JobProcessing, progressTranscribed, "transcribed", "Transcription saved", nil); err != nil {
		return runOutcome{}, err
	}

	if err := c.advance(ctx, r, catalog.JobGeneratingContent, progressGenerating, "generating_content", "Generating description and categories", nil); err != nil {
		return runOutcome{}, err
	}
	generated, err := c.generator.Generate(services.WithStage(ctx, "generating_content"), content.Request{
		Title:           book.Title,
		Author:          book.Author,
		Transcript:      result.Text,
		DurationSeconds: result.DurationSeconds,
		WordCount:       result.WordCount,
		Confidence:      result.Confidence,
	})
	if err != nil {
		return runOutcome{}, err
	}

	if err := c.store.ApplyGeneratedContentForRun(ctx, job.ID, r.runID, catalog.GeneratedContent{
		Description: generated.Description,
		Summary:     generated.Summary,
		Categories:  generated.Categories,
		Keywords:    generated.Keywords,
	}); err != nil {
		return runOutcome{}, err
	}
	if err := c.advance(ctx, r, catalog.JobProcessing, progressContentStored, "content_applied", "Catalog entry updated", catalog.Metadata{
		catalog.MetaCategoriesGenerated: len(generated.Categories),
		catalog.MetaContentConfidence:   generated.Confidence,
		catalog.MetaPromptTokens:        generated.PromptTokens,
	}); err != nil {
		return runOutcome{}, err
	}

	if err := c.store.CompleteJob(ctx, job.ID, r.runID, catalog.Metadata{
		catalog.MetaPhase:               "complete",
		catalog.MetaMessage:             "Processing complete",
		catalog.MetaTranscriptionID:     saved.ID,
		catalog.MetaWordCount:           result.WordCount,
		catalog.MetaConfidence:          result.Confidence,
		catalog.MetaCategoriesGenerated: len(generated.Categories),
		catalog.MetaTotalTimeMs:         c.now().Sub(r.started).Milliseconds(),
		catalog.MetaCompletedBy:         completedBy,
	}); err != nil {
		return runOutcome{}, err
	}
	c.publishProgress(ctx, r, catalog.JobCompleted, progressCompleted, "Processing complete")
	return runOutcome{transcriptionID: saved.ID, title: book.Title}, nil
}

// advance persists a status transition with its phase bookkeeping.
func (c *Coordinator) advance(ctx context.Context, r *run, status catalog.JobStatus, progress int, phase, message string, extra catalog.Metadata) error {
	patch := catalog.Metadata{
		catalog.MetaPhase:   phase,
		catalog.MetaMessage: message,
		catalog.MetaPhases:  map[string]any{phase: c.now().UTC().Format(time.RFC3339)},
	}
	for k, v := range extra {
		patch[k] = v
	}
	if err := c.store.UpdateJobProgress(ctx, r.job.ID, r.runID, status, progress, patch); err != nil {
		return err
	}
	r.logger.Debug("job progress",
		logging.String("status", string(status)),
		logging.Int("progress", progress),
		logging.String("phase", phase),
	)
	c.publishProgress(ctx, r, status, progress, message)
	return nil
}

func (c *Coordinator) publishProgress(ctx context.Context, r *run, status catalog.JobStatus, progress int, message string) {
	c.publish(ctx, events.JobProgress, events.ProgressPayload{
		AudiobookID: r.job.AudiobookID,
		JobID:       r.job.ID,
		Status:      string(status),
		Progress:    progress,
		Message:     message,
	})
}

// RemapProgress maps a transcription percentage into the job's transcription band.
func RemapProgress(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return transcribeStart + percent*(transcribeEnd-transcribeStart)/100
}

// StatusForPhase maps a transcription phase to the persisted job status.
// The error phase has no status; the failure path records it.
func StatusForPhase(phase transcription.Phase) (catalog.JobStatus, bool) {
	switch phase {
	case transcription.PhaseDownloading:
		return catalog.JobDownloading, true
	case transcription.PhaseValidating:
		return catalog.JobChunking, true
	case transcription.PhaseTranscribing, transcription.PhaseComplete:
		return catalog.JobTranscribing, true
	default:
		return "", false
	}
}

// progressObserver persists orchestrator progress. Observer callbacks cannot
// fail, so the first store error is kept and surfaced once the call returns.
type progressObserver struct {
	c   *Coordinator
	ctx context.Context
	r   *run
	err error
}

func (o *progressObserver) OnProgress(phase transcription.Phase, message string, percent int) {
	if o.err != nil {
		return
	}
	status, ok := StatusForPhase(phase)
	if !ok {
		return
	}
	o.err = o.c.advance(o.ctx, o.r, status, RemapProgress(percent), string(phase), message, nil)
}

func (o *progressObserver) Err() error {
	return o.err
}
