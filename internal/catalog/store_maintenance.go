package catalog

import (
	"context"
	"fmt"
	"time"
)

// JobCounts returns a count of jobs grouped by status.
func (s *Store) JobCounts(ctx context.Context) (map[JobStatus]int, error) {
	return s.statusCounts(ensureContext(ctx), `SELECT status, COUNT(1) FROM processing_jobs GROUP BY status`)
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	counts, err := s.JobCounts(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range counts {
		health.Total += count
		switch status {
		case JobPending:
			health.Pending += count
		case JobFailed:
			health.Failed += count
		case JobCompleted:
			health.Completed += count
		default:
			health.Active += count
		}
	}
	return health, nil
}

// Ping verifies the database connection responds.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("catalog database connection unavailable")
	}
	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		return fmt.Errorf("ping catalog database: %w", err)
	}
	return nil
}
