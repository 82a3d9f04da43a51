package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lectern/internal/catalog"
	"lectern/internal/logging"
)

// Start reclaims runs orphaned by a previous process, subscribes to bus
// triggers and launches the workers and supervisor.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("workflow already running")
	}
	c.mu.Unlock()

	// No worker of this process holds a run yet, so every claimed job is orphaned.
	res, err := c.heartbeat.Reclaim(ctx, c.now())
	if err != nil {
		return fmt.Errorf("reclaim orphaned jobs: %w", err)
	}
	c.afterReclaim(ctx, res)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	if c.bus != nil {
		c.unsub = append(c.unsub, NewTriggers(c.store, c.baseLogger, c.Wake).Attach(c.bus))
	}

	c.wg.Add(c.workers + 1)
	for i := 0; i < c.workers; i++ {
		go c.runWorker(runCtx, i)
	}
	go c.runSupervisor(runCtx)

	c.logger.Info("workflow started",
		logging.Int("workers", c.workers),
		logging.Duration("poll_interval", c.pollInterval),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	return nil
}

// Stop cancels the workers and waits for them. A job interrupted here keeps
// its run id and is reclaimed by the next Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	unsub := c.unsub
	c.running = false
	c.cancel = nil
	c.unsub = nil
	c.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	cancel()
	c.wg.Wait()
}

func (c *Coordinator) runWorker(ctx context.Context, index int) {
	defer c.wg.Done()
	logger := c.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		runID := uuid.NewString()
		job, err := c.store.ClaimNextPending(ctx, runID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_claim_failed"),
				logging.String(logging.FieldErrorHint, "check catalog database access"),
			)
			c.waitForWork(ctx, c.errorInterval)
			continue
		}
		if job == nil {
			c.waitForWork(ctx, c.pollInterval)
			continue
		}

		c.trackRun(job.ID, runID)
		c.processJob(ctx, job, runID)
		c.untrackRun(job.ID)
	}
}

func (c *Coordinator) runSupervisor(ctx context.Context) {
	defer c.wg.Done()
	interval := c.heartbeat.Interval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		res, err := c.heartbeat.ReclaimStale(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logging.WarnWithContext(c.logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check catalog database access"),
				logging.String(logging.FieldImpact, "jobs with dead runs stay in their last status"),
			)
			continue
		}
		c.afterReclaim(ctx, res)
	}
}

func (c *Coordinator) afterReclaim(ctx context.Context, res catalog.ReclaimResult) {
	for _, id := range res.Failed {
		c.publishAbandoned(ctx, id)
	}
	if len(res.Requeued) > 0 {
		c.Wake()
	}
}

func (c *Coordinator) trackRun(jobID int64, runID string) {
	c.mu.Lock()
	c.active[jobID] = runID
	c.mu.Unlock()
}

func (c *Coordinator) untrackRun(jobID int64) {
	c.mu.Lock()
	delete(c.active, jobID)
	c.mu.Unlock()
}
