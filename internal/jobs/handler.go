package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/logger"
)

// Recomputer compares registry balances with the ledger.
type Recomputer interface {
	RecomputeBalances(ctx context.Context, apply bool) (*ledger.DriftReport, error)
}

// NewReconcileHandler returns a handler that runs reconcile jobs against r
// and stores the drift report on the job.
func NewReconcileHandler(r Recomputer) JobHandler {
	return func(ctx context.Context, job Job) error {
		rj, ok := job.(*ReconcileJob)
		if !ok {
			return fmt.Errorf("reconcile handler: unexpected job type %s", job.GetType())
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", rj.JobID).
			Bool("apply", rj.Apply).
			Logger()

		report, err := r.RecomputeBalances(ctx, rj.Apply)
		if err != nil {
			log.Error().Err(err).Msg("Balance recomputation failed")
			return err
		}
		rj.Report = report

		log.Info().
			Int("records", report.Records).
			Int("drifted", len(report.Drifted)).
			Int("unknown", len(report.Unknown)).
			Bool("applied", report.Applied).
			Msg("Balance recomputation finished")
		return nil
	}
}
