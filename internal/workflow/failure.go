package workflow

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"lectern/internal/catalog"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/services"
)

const maxErrorMessageLen = 1000

// handleFailure is the single catch point for a run. The failed state is
// persisted before the outcome is published.
func (c *Coordinator) handleFailure(ctx context.Context, r *run, runErr error) {
	job := r.job
	if ctx.Err() != nil && errors.Is(runErr, context.Canceled) {
		r.logger.Info("job interrupted by shutdown; it will be reclaimed on restart",
			logging.String(logging.FieldEventType, "job_interrupted"),
		)
		return
	}
	if errors.Is(runErr, catalog.ErrJobNotActive) {
		r.logger.Info("run no longer owns job; discarding results",
			logging.String(logging.FieldEventType, "job_run_superseded"),
			logging.String(logging.FieldErrorHint, "the job was cancelled or reclaimed while this run was in flight"),
		)
		return
	}

	details := services.Details(runErr)
	message := failureMessage(runErr)
	attrs := []logging.Attr{
		logging.String("error_message", message),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldStage, details.Stage),
		logging.String("error_operation", details.Operation),
		logging.Alert("job_failure"),
		logging.String(logging.FieldEventType, "job_failure"),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(runErr))
	}
	r.logger.Error("job failed", logging.Args(attrs...)...)
	c.setLastError(runErr)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	elapsed := c.now().Sub(r.started)
	err := c.store.FailJob(persistCtx, job.ID, r.runID, message, catalog.Metadata{
		catalog.MetaPhase:       "error",
		catalog.MetaMessage:     message,
		catalog.MetaErrorKind:   string(details.Kind),
		catalog.MetaTotalTimeMs: elapsed.Milliseconds(),
	})
	if errors.Is(err, catalog.ErrJobNotActive) {
		r.logger.Info("job was cancelled before the failure could be recorded")
		return
	}
	if err != nil {
		r.logger.Error("failed to persist job failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_failure_persist_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access; the supervisor will reclaim the job"),
		)
		return
	}

	c.setLastJob(persistCtx, job.ID)
	c.publish(persistCtx, events.ProcessingComplete, events.CompletePayload{
		AudiobookID:      job.AudiobookID,
		JobID:            job.ID,
		Title:            r.title,
		Success:          false,
		Error:            message,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}

// failureMessage renders the persisted job error. Quota failures lead with a
// billing hint because retrying them cannot succeed.
func failureMessage(err error) string {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = "processing failed"
	}
	if services.Details(err).Kind == services.KindQuotaExceeded {
		message = "OpenAI quota exceeded; check plan and billing before retrying: " + message
	}
	if len(message) > maxErrorMessageLen {
		end := maxErrorMessageLen - 3
		for end > 0 && !utf8.RuneStart(message[end]) {
			end--
		}
		message = message[:end] + "..."
	}
	return message
}

// publishAbandoned reports a job the supervisor failed after its runs died.
func (c *Coordinator) publishAbandoned(ctx context.Context, jobID int64) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		c.logger.Warn("load abandoned job failed", logging.Int64(logging.FieldJobID, jobID), logging.Error(err))
		return
	}
	title := ""
	if book, err := c.store.GetAudiobook(ctx, job.AudiobookID); err == nil {
		title = book.Title
	}
	c.publish(ctx, events.ProcessingComplete, events.CompletePayload{
		AudiobookID: job.AudiobookID,
		JobID:       job.ID,
		Title:       title,
		Success:     false,
		Error:       job.ErrorMessage,
	})
}

func (c *Coordinator) publish(ctx context.Context, name events.Name, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, name, payload)
}
