package workflow

import (
	"context"

	"lectern/internal/catalog"
	"lectern/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Workers    int
	ActiveRuns map[int64]string
	LastError  string
	LastJob    *catalog.Job
	JobStats   map[catalog.JobStatus]int
}

// Status returns the latest workflow information.
func (c *Coordinator) Status(ctx context.Context) StatusSummary {
	c.mu.RLock()
	summary := StatusSummary{
		Running:    c.running,
		Workers:    c.workers,
		ActiveRuns: make(map[int64]string, len(c.active)),
	}
	for id, runID := range c.active {
		summary.ActiveRuns[id] = runID
	}
	if c.lastErr != nil {
		summary.LastError = c.lastErr.Error()
	}
	if c.lastJob != nil {
		copy := *c.lastJob
		summary.LastJob = &copy
	}
	c.mu.RUnlock()

	stats, err := c.store.JobCounts(ctx)
	if err != nil {
		c.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats
	return summary
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Coordinator) setLastJob(ctx context.Context, jobID int64) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.lastJob = job
	c.mu.Unlock()
}
