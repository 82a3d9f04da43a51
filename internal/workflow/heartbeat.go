package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/catalog"
	"lectern/internal/logging"
)

// HeartbeatMonitor keeps run liveness fresh and reclaims jobs whose run died.
type HeartbeatMonitor struct {
	store             *catalog.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	maxAttempts       int
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor. A non-positive timeout disables reclaiming.
func NewHeartbeatMonitor(store *catalog.Store, logger *slog.Logger, interval, timeout time.Duration, maxAttempts int) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		maxAttempts:       maxAttempts,
		now:               time.Now,
	}
}

// Interval is the heartbeat and supervisor tick.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.heartbeatInterval
}

// ReclaimStale reclaims jobs that have not heartbeated within the timeout.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context) (catalog.ReclaimResult, error) {
	if h.heartbeatTimeout <= 0 {
		return catalog.ReclaimResult{}, nil
	}
	return h.Reclaim(ctx, h.now().Add(-h.heartbeatTimeout))
}

// Reclaim requeues or fails every claimed job whose last heartbeat precedes cutoff.
func (h *HeartbeatMonitor) Reclaim(ctx context.Context, cutoff time.Time) (catalog.ReclaimResult, error) {
	res, err := h.store.ReclaimStale(ctx, cutoff, h.maxAttempts)
	if err != nil {
		return res, err
	}
	if len(res.Requeued) > 0 {
		h.logger.Info("requeued stale jobs",
			logging.Int("count", len(res.Requeued)),
			logging.Any("job_ids", res.Requeued),
			logging.String(logging.FieldEventType, "heartbeat_requeue"),
		)
	}
	if len(res.Failed) > 0 {
		logging.WarnWithContext(h.logger, "failed stale jobs after exhausting run attempts", "heartbeat_fail",
			logging.Int("count", len(res.Failed)),
			logging.Any("job_ids", res.Failed),
			logging.Int("max_run_attempts", h.maxAttempts),
			logging.String(logging.FieldErrorHint, "inspect the job and retry it once the cause is fixed"),
			logging.String(logging.FieldImpact, "jobs marked failed without a result"),
			logging.Alert("job_abandoned"),
		)
	}
	return res, nil
}

// StartLoop refreshes the job heartbeat until ctx ends or the run loses the job.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64, runID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.Heartbeat(ctx, jobID, runID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, catalog.ErrJobNotActive):
				logger.Info("run no longer owns job; heartbeat stopped")
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
