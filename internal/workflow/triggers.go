package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lectern/internal/catalog"
	"lectern/internal/events"
	"lectern/internal/logging"
)

// Triggers turns bus events into job records. The daemon attaches it with the
// coordinator's Wake; the CLI attaches it without one and leaves the job for
// the daemon's next poll.
type Triggers struct {
	store  *catalog.Store
	logger *slog.Logger
	wake   func()
	now    func() time.Time
}

// NewTriggers builds the upload and retry handlers. wake may be nil.
func NewTriggers(store *catalog.Store, logger *slog.Logger, wake func()) *Triggers {
	if wake == nil {
		wake = func() {}
	}
	return &Triggers{
		store:  store,
		logger: logging.NewComponentLogger(logger, "workflow-triggers"),
		wake:   wake,
		now:    time.Now,
	}
}

// Attach subscribes to upload and retry events and returns the unsubscribe func.
func (t *Triggers) Attach(bus *events.Bus) func() {
	unsubUpload := bus.Subscribe(events.Uploaded, t.onUploaded)
	unsubRetry := bus.Subscribe(events.RetryProcessing, t.onRetry)
	return func() {
		unsubUpload()
		unsubRetry()
	}
}

func (t *Triggers) onUploaded(ctx context.Context, event events.Event) {
	payload, ok := event.Payload.(events.UploadedPayload)
	if !ok {
		return
	}
	job, err := t.HandleUploaded(ctx, payload)
	if err != nil {
		logging.WarnWithContext(t.logger, "upload did not create a processing job", "upload_trigger_failed",
			logging.Int64(logging.FieldAudiobookID, payload.AudiobookID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cancel or finish the active job, then create one with lectern jobs create"),
			logging.String(logging.FieldImpact, "uploaded file is not processed"),
		)
		return
	}
	t.logger.Info("processing job queued",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int64(logging.FieldAudiobookID, payload.AudiobookID),
		logging.String("file_name", payload.FileName),
		logging.String(logging.FieldEventType, "job_queued"),
	)
}

// HandleUploaded creates the pending job for an upload. A job already pending
// for the audiobook is reused; any other active job is a conflict.
func (t *Triggers) HandleUploaded(ctx context.Context, payload events.UploadedPayload) (*catalog.Job, error) {
	meta := catalog.Metadata{
		catalog.MetaFileName:  payload.FileName,
		catalog.MetaFileSize:  payload.FileSize,
		catalog.MetaFilePath:  payload.FilePath,
		catalog.MetaStartTime: t.now().UTC().Format(time.RFC3339),
	}
	if payload.Bucket != "" {
		meta[catalog.MetaBucket] = payload.Bucket
	}
	job, err := t.store.CreateJob(ctx, catalog.NewJob{
		AudiobookID: payload.AudiobookID,
		JobType:     catalog.JobTypeTranscription,
		Metadata:    meta,
	})
	if errors.Is(err, catalog.ErrActiveJobExists) {
		active, activeErr := t.store.ActiveJobForAudiobook(ctx, payload.AudiobookID)
		if activeErr != nil {
			return nil, activeErr
		}
		if active != nil && active.Status == catalog.JobPending {
			t.wake()
			return active, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	t.wake()
	return job, nil
}

func (t *Triggers) onRetry(_ context.Context, event events.Event) {
	payload, ok := event.Payload.(events.RetryPayload)
	if !ok {
		return
	}
	t.logger.Info("retry requested",
		logging.Int64(logging.FieldJobID, payload.OriginalJobID),
		logging.Int64(logging.FieldAudiobookID, payload.AudiobookID),
		logging.String(logging.FieldEventType, "job_retry"),
	)
	t.wake()
}
