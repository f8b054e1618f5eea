package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/shopspring/decimal"
)

// operation tracks the writes a mutation has committed so that a later
// failure can be reported as a partial failure instead of a plain error.
type operation struct {
	name      string
	committed []string
	entries   []domain.AuditEntry
}

func newOperation(name string) *operation {
	return &operation{name: name}
}

func (o *operation) commit(step string, rec domain.Transaction, delta decimal.Decimal) {
	o.committed = append(o.committed, step)
	o.entries = append(o.entries, domain.AuditEntry{
		Operation: o.name,
		RecordID:  rec.ID,
		Bank:      rec.Bank,
		Account:   rec.Account,
		Delta:     delta,
		Outcome:   domain.OutcomeOK,
		Detail:    step,
	})
}

// fail wraps err for the given step. Once something has been committed the
// error becomes a *domain.PartialFailureError.
func (o *operation) fail(step string, err error) error {
	if len(o.committed) == 0 {
		return fmt.Errorf("%s: %s: %w", o.name, step, err)
	}
	return &domain.PartialFailureError{
		Operation: o.name,
		Committed: append([]string(nil), o.committed...),
		Err:       fmt.Errorf("%s: %w", step, err),
	}
}

// finish logs the outcome and writes the audit trail. It returns err
// unchanged.
func (s *Service) finish(ctx context.Context, o *operation, err error) error {
	log := logger.FromContext(ctx)
	entries := o.entries

	switch {
	case err == nil:
		log.Info().
			Str("operation", o.name).
			Int("writes", len(o.committed)).
			Msg("Mutation applied")
	case errors.Is(err, domain.ErrPartialFailure):
		log.Error().
			Err(err).
			Str("operation", o.name).
			Strs("committed", o.committed).
			Msg("Mutation left ledger and registry inconsistent")
		entries = append(entries, domain.AuditEntry{
			Operation: o.name,
			Delta:     decimal.Zero,
			Outcome:   domain.OutcomeInconsistent,
			Detail:    err.Error(),
		})
	default:
		log.Warn().
			Err(err).
			Str("operation", o.name).
			Msg("Mutation failed")
		entries = append(entries, domain.AuditEntry{
			Operation: o.name,
			Delta:     decimal.Zero,
			Outcome:   domain.OutcomeFailed,
			Detail:    err.Error(),
		})
	}

	if s.auditor == nil {
		return err
	}
	now := s.now().UTC()
	for _, e := range entries {
		e.Timestamp = now
		if auditErr := s.auditor.Record(ctx, e); auditErr != nil {
			log.Warn().Err(auditErr).Str("operation", o.name).Msg("Failed to write audit entry")
		}
	}
	return err
}
