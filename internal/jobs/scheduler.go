package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-manager/internal/logger"
)

// Scheduler publishes a reconcile job immediately and then once per
// Interval until its context is cancelled.
type Scheduler struct {
	Publisher  Publisher
	Interval   time.Duration
	Apply      bool
	MaxRetries int
}

// Run blocks until ctx is done. A failed publish is logged and the next
// tick tries again.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return fmt.Errorf("Scheduler.Run: interval must be positive, got %s", s.Interval)
	}
	log := logger.FromContext(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		job := &ReconcileJob{Apply: s.Apply, MaxRetries: s.MaxRetries}
		if err := s.Publisher.PublishReconcile(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to schedule reconcile job")
		} else {
			log.Debug().Str("job_id", job.JobID).Msg("Reconcile job scheduled")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
