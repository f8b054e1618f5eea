package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountDrift compares a registry balance with the ledger aggregate.
type AccountDrift struct {
	Bank     string          `json:"bank"`
	Account  string          `json:"account"`
	Recorded decimal.Decimal `json:"recorded"`
	Expected decimal.Decimal `json:"expected"`
	Drift    decimal.Decimal `json:"drift"`
}

// DriftReport is the outcome of a balance recomputation.
type DriftReport struct {
	CheckedAt  time.Time           `json:"checked_at"`
	Records    int                 `json:"records"`
	Drifted    []AccountDrift      `json:"drifted"`
	Unknown    []domain.AccountKey `json:"unknown,omitempty"` // in the ledger, missing from the registry
	Consistent bool                `json:"consistent"`
	Applied    bool                `json:"applied"`
}

// RecomputeBalances aggregates the signed amounts of every non-cash ledger
// record per account and compares them with the registry. With apply set,
// drifted registry balances are rewritten to the aggregates. Accounts that
// only appear in the ledger are reported, never created.
func (s *Service) RecomputeBalances(ctx context.Context, apply bool) (*DriftReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("RecomputeBalances: reading ledger: %w", err)
	}
	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("RecomputeBalances: listing registry: %w", err)
	}

	sums := AggregateBalances(records)
	report := &DriftReport{CheckedAt: s.now().UTC(), Records: len(records)}

	registered := make(map[domain.AccountKey]bool, len(entries))
	for i, e := range entries {
		registered[e.Key()] = true
		expected, ok := sums[e.Key()]
		if !ok {
			expected = decimal.Zero
		}
		if e.Balance.Equal(expected) {
			continue
		}
		report.Drifted = append(report.Drifted, AccountDrift{
			Bank:     e.Bank,
			Account:  e.Account,
			Recorded: e.Balance,
			Expected: expected,
			Drift:    e.Balance.Sub(expected),
		})
		entries[i].Balance = expected
	}
	for _, k := range domain.SortedKeys(sums) {
		if !registered[k] {
			report.Unknown = append(report.Unknown, k)
		}
	}
	report.Consistent = len(report.Drifted) == 0 && len(report.Unknown) == 0

	if apply && len(report.Drifted) > 0 {
		o := newOperation("recompute")
		if err := s.registry.ReplaceAll(ctx, entries); err != nil {
			return nil, s.finish(ctx, o, o.fail("registry rewrite", err))
		}
		for _, d := range report.Drifted {
			o.commit("registry rewrite", domain.Transaction{Bank: d.Bank, Account: d.Account}, d.Drift.Neg())
		}
		report.Applied = true
		if err := s.finish(ctx, o, nil); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// AggregateBalances sums signed amounts per (bank, account), skipping cash.
func AggregateBalances(records []domain.Transaction) map[domain.AccountKey]decimal.Decimal {
	sums := make(map[domain.AccountKey]decimal.Decimal)
	for _, r := range records {
		if r.IsCash() {
			continue
		}
		sums[r.Key()] = sums[r.Key()].Add(r.Amount)
	}
	return sums
}
