package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"lectern/internal/catalog"
	"lectern/internal/events"
	"lectern/internal/language"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/storage"
)

const forcedSupersededMessage = "superseded by a forced job"

// JobService runs admin operations against the catalog and object store.
// Upload triggers are published on bus; whoever attached workflow triggers
// to it turns them into jobs.
type JobService struct {
	store     *catalog.Store
	objects   storage.ObjectStore
	bus       *events.Bus
	bucket    string
	signedTTL time.Duration
	logger    *slog.Logger
}

// NewJobService wires the service. objects may be nil for read-only use.
func NewJobService(store *catalog.Store, objects storage.ObjectStore, bus *events.Bus, bucket string, signedTTL time.Duration, logger *slog.Logger) *JobService {
	return &JobService{
		store:     store,
		objects:   objects,
		bus:       bus,
		bucket:    bucket,
		signedTTL: signedTTL,
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// List returns one page of jobs with counts per status.
func (s *JobService) List(ctx context.Context, q JobQuery) (JobListResponse, error) {
	filter := catalog.JobFilter{AudiobookID: q.AudiobookID, Limit: q.Limit, Offset: q.Offset}
	for _, raw := range q.Statuses {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := catalog.ParseJobStatus(part)
			if !ok {
				return JobListResponse{}, services.Wrap(services.ErrValidation, "api", "list jobs", fmt.Sprintf("unknown status %q", part), nil)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return JobListResponse{}, services.Wrap(services.ErrValidation, "api", "list jobs", "limit and offset must not be negative", nil)
	}
	page, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return JobListResponse{}, err
	}
	limit := filter.Limit
	if limit == 0 {
		limit = len(page.Jobs)
	}
	return JobListResponse{
		Jobs:   FromJobs(page.Jobs),
		Total:  page.Total,
		Limit:  limit,
		Offset: filter.Offset,
		Counts: MergeJobCounts(page.Counts),
	}, nil
}

// Describe returns a single job.
func (s *JobService) Describe(ctx context.Context, id int64) (*Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Retry resets a failed job to pending and announces it. The whole pipeline
// runs again under a new run id.
func (s *JobService) Retry(ctx context.Context, id int64) (*Job, error) {
	job, err := s.store.RetryJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job retry requested",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int64(logging.FieldAudiobookID, job.AudiobookID),
		logging.Int64("retry_count", job.Metadata.Int64(catalog.MetaRetryCount)),
		logging.String(logging.FieldEventType, "job_retry"),
	)
	s.publish(ctx, events.RetryProcessing, events.RetryPayload{AudiobookID: job.AudiobookID, OriginalJobID: job.ID})
	dto := FromJob(job)
	return &dto, nil
}

// Cancel fails a job with the admin cancellation message. A run still in
// flight is not interrupted; its later writes are rejected.
func (s *JobService) Cancel(ctx context.Context, id int64) (*Job, error) {
	job, err := s.store.CancelJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job cancelled",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int64(logging.FieldAudiobookID, job.AudiobookID),
		logging.String(logging.FieldEventType, "job_cancel"),
	)
	dto := FromJob(job)
	return &dto, nil
}

// Create queues a job for an audiobook that already has a stored file.
// An active job blocks creation unless Force is set, which fails it first.
func (s *JobService) Create(ctx context.Context, req CreateJobRequest) (*Job, error) {
	book, err := s.store.GetAudiobook(ctx, req.AudiobookID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(book.FileKey) == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "create job", "audiobook has no uploaded file", nil)
	}
	active, err := s.store.ActiveJobForAudiobook(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if !req.Force {
			return nil, fmt.Errorf("%w: job %d is %s", catalog.ErrActiveJobExists, active.ID, active.Status)
		}
		n, err := s.store.ForceFailActive(ctx, book.ID, forcedSupersededMessage)
		if err != nil {
			return nil, err
		}
		logging.WarnWithContext(s.logger, "forced job creation failed the active job", "job_force_superseded",
			logging.Int64(logging.FieldJobID, active.ID),
			logging.Int64(logging.FieldAudiobookID, book.ID),
			logging.Int64("superseded_job_id", n),
			logging.String(logging.FieldImpact, "an in-flight run will have its results discarded"),
		)
	}
	previous := book.Status
	if err := s.store.SetAudiobookStatus(ctx, book.ID, catalog.AudiobookProcessing); err != nil {
		return nil, err
	}
	job, err := s.trigger(ctx, book, book.FileSizeBytes)
	if err != nil {
		if revertErr := s.store.SetAudiobookStatus(context.WithoutCancel(ctx), book.ID, previous); revertErr != nil {
			logging.WarnWithContext(s.logger, "failed to restore audiobook status", "audiobook_status_restore_failed",
				logging.Int64(logging.FieldAudiobookID, book.ID),
				logging.Error(revertErr),
				logging.String(logging.FieldImpact, "audiobook stays processing without a job"),
			)
		}
		return nil, err
	}
	return job, nil
}

// Ingest stores an uploaded file under a fresh key, creates the audiobook and
// publishes the upload trigger.
func (s *JobService) Ingest(ctx context.Context, req IngestRequest, body io.Reader) (IngestResult, error) {
	if s.objects == nil {
		return IngestResult{}, services.Wrap(services.ErrConfiguration, "api", "ingest", "object store not configured", nil)
	}
	title := strings.TrimSpace(req.Title)
	fileName := strings.TrimSpace(path.Base(req.FileName))
	if title == "" {
		return IngestResult{}, services.Wrap(services.ErrValidation, "api", "ingest", "title is required", nil)
	}
	if fileName == "" || fileName == "." || fileName == "/" {
		return IngestResult{}, services.Wrap(services.ErrValidation, "api", "ingest", "file name is required", nil)
	}

	key := storage.NewUploadKey(fileName)
	info, err := s.objects.Put(ctx, s.bucket, key, body)
	if err != nil {
		return IngestResult{}, err
	}
	book, err := s.store.CreateAudiobook(ctx, title, strings.TrimSpace(req.Author))
	if err != nil {
		s.discard(ctx, key)
		return IngestResult{}, err
	}
	if err := s.store.SetAudiobookFile(ctx, book.ID, s.bucket, key, s.objects.PublicURL(s.bucket, key), info.Size); err != nil {
		s.discard(ctx, key)
		return IngestResult{}, err
	}
	book, err = s.store.GetAudiobook(ctx, book.ID)
	if err != nil {
		return IngestResult{}, err
	}
	s.logger.Info("audiobook ingested",
		logging.Int64(logging.FieldAudiobookID, book.ID),
		logging.String("key", key),
		logging.Int64("size_bytes", info.Size),
		logging.String(logging.FieldEventType, "audiobook_ingest"),
	)

	job, err := s.trigger(ctx, book, info.Size)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return IngestResult{}, err
	}
	return IngestResult{Audiobook: FromAudiobook(book, s.signedURL(book)), Job: job}, nil
}

// Audiobook returns the entry with its transcript summary and active job.
func (s *JobService) Audiobook(ctx context.Context, id int64) (*AudiobookDetail, error) {
	book, err := s.store.GetAudiobook(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &AudiobookDetail{Audiobook: FromAudiobook(book, s.signedURL(book))}
	tr, err := s.store.GetTranscription(ctx, id)
	switch {
	case err == nil:
		detail.Transcription = FromTranscription(tr)
		s.attachLanguage(ctx, detail.Transcription)
	case errors.Is(err, catalog.ErrTranscriptionNotFound):
	default:
		return nil, err
	}
	active, err := s.store.ActiveJobForAudiobook(ctx, id)
	if err != nil {
		return nil, err
	}
	if active != nil {
		job := FromJob(active)
		detail.ActiveJob = &job
	}
	return detail, nil
}

// ListAudiobooks returns up to limit audiobooks, newest first.
func (s *JobService) ListAudiobooks(ctx context.Context, limit int) ([]Audiobook, error) {
	books, err := s.store.ListAudiobooks(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Audiobook, 0, len(books))
	for _, book := range books {
		out = append(out, FromAudiobook(book, ""))
	}
	return out, nil
}

// attachLanguage copies the detected language from the job that produced the transcript.
func (s *JobService) attachLanguage(ctx context.Context, tr *Transcription) {
	if tr == nil || tr.JobID == 0 {
		return
	}
	job, err := s.store.GetJob(ctx, tr.JobID)
	if err != nil {
		return
	}
	if code := job.Metadata.String(catalog.MetaLanguage); code != "" {
		tr.Language = code
		tr.LanguageName = language.DisplayName(code)
	}
}

// trigger publishes the upload event and returns the job it produced. The
// job is located by id rather than by status because a fast run may already
// have finished it.
func (s *JobService) trigger(ctx context.Context, book *catalog.Audiobook, size int64) (*Job, error) {
	bucket := book.FileBucket
	if bucket == "" {
		bucket = s.bucket
	}
	before, err := s.latestJob(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Uploaded, events.UploadedPayload{
		AudiobookID: book.ID,
		FileName:    path.Base(book.FileKey),
		FileSize:    size,
		FilePath:    book.FileKey,
		Bucket:      bucket,
	})
	after, err := s.latestJob(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	queued := after != nil && (before == nil || after.ID > before.ID || after.Status == catalog.JobPending)
	if !queued {
		return nil, fmt.Errorf("%w: no job was queued for audiobook %d", services.ErrNotFound, book.ID)
	}
	dto := FromJob(after)
	return &dto, nil
}

func (s *JobService) latestJob(ctx context.Context, audiobookID int64) (*catalog.Job, error) {
	page, err := s.store.ListJobs(ctx, catalog.JobFilter{AudiobookID: audiobookID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Jobs) == 0 {
		return nil, nil
	}
	return page.Jobs[0], nil
}

func (s *JobService) signedURL(book *catalog.Audiobook) string {
	if s.objects == nil || book.FileKey == "" {
		return ""
	}
	url, err := s.objects.SignedURL(book.FileBucket, book.FileKey, s.signedTTL)
	if err != nil {
		return ""
	}
	return url
}

func (s *JobService) discard(ctx context.Context, key string) {
	if err := s.objects.Delete(ctx, s.bucket, key); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove orphaned upload", "upload_cleanup_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned object left in storage"),
		)
	}
}

func (s *JobService) publish(ctx context.Context, name events.Name, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, name, payload)
}
