package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/dvloznov/finance-manager/internal/query"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service applies ledger mutations and mirrors them into the registry.
// Mutations are serialized by mu so that a ledger write and the balance
// adjustments it implies form one logical operation.
type Service struct {
	mu       sync.Mutex
	store    Store
	registry Registry
	auditor  Auditor
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor records every mutation through a.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithClock overrides time.Now, used for refund and opening-balance dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a Service over the given store and registry.
func NewService(store Store, registry Registry, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MutationResult describes the records written and the balances they left.
type MutationResult struct {
	Records  []domain.Transaction  `json:"records"`
	Balances []domain.AccountEntry `json:"balances,omitempty"`
}

// Add appends a transaction and reconciles its account. For Interac
// transfers across accounts a second, mirrored leg is written for the
// target account.
func (s *Service) Add(ctx context.Context, in AddInput) (*MutationResult, error) {
	rec, err := in.parse()
	if err != nil {
		return nil, err
	}
	target, isTransfer, err := in.transfer()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := []domain.AccountKey{rec.Key()}
	if isTransfer {
		keys = append(keys, target)
	}
	if err := s.requireAccounts(ctx, keys...); err != nil {
		return nil, fmt.Errorf("Add: %w", err)
	}

	o := newOperation("add")
	result := &MutationResult{}

	rec.ID = s.newID()
	first, entry, err := s.appendAndReconcile(ctx, o, rec)
	if err != nil {
		return nil, s.finish(ctx, o, err)
	}
	result.add(first, entry)

	if isTransfer {
		leg := domain.Transaction{
			ID:       s.newID(),
			Date:     rec.Date,
			Time:     rec.Time,
			Type:     domain.TypeInterac,
			Bank:     target.Bank,
			Account:  target.Account,
			Amount:   rec.Amount.Neg(),
			Purpose:  "Interac transfer " + rec.Purpose,
			LinkedID: rec.ID,
		}
		second, entry, err := s.appendAndReconcile(ctx, o, leg)
		if err != nil {
			return nil, s.finish(ctx, o, err)
		}
		result.add(second, entry)
	}

	return result, s.finish(ctx, o, nil)
}

// Edit overwrites a record and moves the balance by the difference between
// the new and original signed amounts. When the record moves to another
// account the original amount is reversed on the old account and the new
// amount applied on the new one.
func (s *Service) Edit(ctx context.Context, in EditInput) (*MutationResult, error) {
	if in.ID == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	updated, err := in.parse()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	original, err := s.store.ReadOne(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("Edit: reading original: %w", err)
	}
	if err := s.requireAccounts(ctx, updated.Key()); err != nil {
		return nil, fmt.Errorf("Edit: %w", err)
	}

	updated.ID = original.ID
	updated.RefundStatus = original.RefundStatus
	updated.LinkedID = original.LinkedID
	updated.BalanceLeft = original.BalanceLeft

	o := newOperation("edit")
	if err := s.store.Replace(ctx, updated); err != nil {
		return nil, s.finish(ctx, o, o.fail("ledger replace "+updated.ID, err))
	}
	o.commit("ledger replace "+updated.ID, updated, decimal.Zero)

	result := &MutationResult{}
	var last *domain.AccountEntry
	if original.Key() == updated.Key() {
		last, err = s.reconcile(ctx, o, updated, updated.Amount.Sub(original.Amount))
		if err != nil {
			return nil, s.finish(ctx, o, err)
		}
	} else {
		reversed, err := s.reconcile(ctx, o, original, original.Amount.Neg())
		if err != nil {
			return nil, s.finish(ctx, o, err)
		}
		if reversed != nil {
			result.Balances = append(result.Balances, *reversed)
		}
		last, err = s.reconcile(ctx, o, updated, updated.Amount)
		if err != nil {
			return nil, s.finish(ctx, o, err)
		}
	}

	if last != nil {
		updated.BalanceLeft = s.snapshot(ctx, updated.ID, last.Balance)
		result.Balances = append(result.Balances, *last)
	}
	result.Records = append(result.Records, updated)

	return result, s.finish(ctx, o, nil)
}

// Delete removes a record and reverses its amount on the account.
func (s *Service) Delete(ctx context.Context, id string) (*MutationResult, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	original, err := s.store.ReadOne(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Delete: reading original: %w", err)
	}

	o := newOperation("delete")
	if err := s.store.Remove(ctx, id); err != nil {
		return nil, s.finish(ctx, o, o.fail("ledger remove "+id, err))
	}
	o.commit("ledger remove "+id, original, decimal.Zero)

	result := &MutationResult{Records: []domain.Transaction{original}}
	entry, err := s.reconcile(ctx, o, original, original.Amount.Neg())
	if err != nil {
		return nil, s.finish(ctx, o, err)
	}
	if entry != nil {
		result.Balances = append(result.Balances, *entry)
	}

	return result, s.finish(ctx, o, nil)
}

// Refund appends an Incoming "Refund" record linked to the original and
// annotates the original's refund status. The original amount is never
// changed.
func (s *Service) Refund(ctx context.Context, in RefundInput) (*MutationResult, error) {
	if in.ID == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	refundType := in.RefundType
	if refundType == "" {
		refundType = RefundPartial
	}
	if refundType != RefundFull && refundType != RefundPartial {
		return nil, domain.NewValidationError("refund_type", "must be full or partial")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	original, err := s.store.ReadOne(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("Refund: reading original: %w", err)
	}
	if original.Direction() != domain.Outgoing {
		return nil, domain.NewValidationError("id", "only outgoing transactions can be refunded")
	}

	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("Refund: reading ledger: %w", err)
	}
	refunded := refundedAmount(records, original.ID)
	remaining := original.Amount.Abs().Sub(refunded)
	if !remaining.IsPositive() {
		return nil, domain.NewValidationError("id", "transaction is already fully refunded")
	}

	amount := remaining
	if refundType == RefundPartial {
		amount, err = domain.ParsePositiveAmount("refund_amount", in.Amount)
		if err != nil {
			return nil, err
		}
		if amount.GreaterThan(remaining) {
			return nil, domain.NewValidationError("refund_amount",
				fmt.Sprintf("exceeds refundable amount %s", remaining.StringFixed(2)))
		}
	}

	if err := s.requireAccounts(ctx, original.Key()); err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	now := s.now()
	refund := domain.Transaction{
		ID:       s.newID(),
		Date:     civil.DateOf(now),
		Time:     now.Format("15:04"),
		Type:     domain.TypeRefund,
		Bank:     original.Bank,
		Account:  original.Account,
		Amount:   amount,
		Purpose:  "Refund for transaction " + original.ID,
		LinkedID: original.ID,
	}

	o := newOperation("refund")
	written, entry, err := s.appendAndReconcile(ctx, o, refund)
	if err != nil {
		return nil, s.finish(ctx, o, err)
	}

	status := refundStatus(refunded.Add(amount), original.Amount.Abs())
	if err := s.store.UpdateField(ctx, original.ID, FieldRefundStatus, status); err != nil {
		return nil, s.finish(ctx, o, o.fail("annotate refund status "+original.ID, err))
	}
	o.commit("annotate refund status "+original.ID, original, decimal.Zero)
	original.RefundStatus = status

	result := &MutationResult{Records: []domain.Transaction{written, original}}
	if entry != nil {
		result.Balances = append(result.Balances, *entry)
	}

	return result, s.finish(ctx, o, nil)
}

// SetupResult reports the outcome of a setup submission.
type SetupResult struct {
	Summary        domain.RegistrySummary `json:"summary"`
	Added          []domain.AccountKey    `json:"added,omitempty"`
	Updated        []domain.AccountKey    `json:"updated,omitempty"`
	OpeningRecords []domain.Transaction   `json:"opening_records,omitempty"`
	Reset          bool                   `json:"reset"`
}

// Setup merges the submitted accounts into the registry. Existing accounts
// keep their balance and take the submitted type; new accounts start at
// the submitted balance, which is recorded as an "Opening Balance" ledger
// record so the registry stays derivable from the ledger. With Reset the
// registry is overwritten wholesale and no ledger records are written.
func (s *Service) Setup(ctx context.Context, in SetupInput) (*SetupResult, error) {
	if err := validateSetup(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := newOperation("setup")

	if in.Reset {
		if err := s.registry.ReplaceAll(ctx, in.Accounts); err != nil {
			return nil, s.finish(ctx, o, o.fail("registry replace", err))
		}
		o.commit("registry replace", domain.Transaction{}, decimal.Zero)
		result := &SetupResult{Summary: domain.Summarize(in.Accounts), Reset: true}
		for _, e := range in.Accounts {
			result.Added = append(result.Added, e.Key())
		}
		return result, s.finish(ctx, o, nil)
	}

	existing, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Setup: listing registry: %w", err)
	}

	index := make(map[domain.AccountKey]int, len(existing))
	for i, e := range existing {
		index[e.Key()] = i
	}

	merged := append([]domain.AccountEntry(nil), existing...)
	result := &SetupResult{}
	var openings []domain.Transaction
	today := civil.DateOf(s.now())

	for _, submitted := range in.Accounts {
		if i, ok := index[submitted.Key()]; ok {
			if submitted.Type != "" {
				merged[i].Type = submitted.Type
			}
			result.Updated = append(result.Updated, submitted.Key())
			continue
		}

		index[submitted.Key()] = len(merged)
		merged = append(merged, submitted)
		result.Added = append(result.Added, submitted.Key())

		if !submitted.Balance.IsZero() {
			balance := submitted.Balance
			openings = append(openings, domain.Transaction{
				ID:          s.newID(),
				Date:        today,
				Type:        domain.TypeOpeningBalance,
				Bank:        submitted.Bank,
				Account:     submitted.Account,
				Amount:      balance,
				Purpose:     "Opening balance",
				BalanceLeft: &balance,
			})
		}
	}

	for _, rec := range openings {
		if _, err := s.store.Append(ctx, rec); err != nil {
			return nil, s.finish(ctx, o, o.fail("ledger append "+rec.ID, err))
		}
		o.commit("ledger append "+rec.ID, rec, rec.Amount)
	}

	if err := s.registry.ReplaceAll(ctx, merged); err != nil {
		return nil, s.finish(ctx, o, o.fail("registry merge", err))
	}
	o.commit("registry merge", domain.Transaction{}, decimal.Zero)

	result.Summary = domain.Summarize(merged)
	result.OpeningRecords = openings
	return result, s.finish(ctx, o, nil)
}

// List materializes the ledger and returns the records matching f in
// ledger order.
func (s *Service) List(ctx context.Context, f query.Filter) ([]domain.Transaction, error) {
	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: reading ledger: %w", err)
	}
	return query.Apply(records, f), nil
}

// Balances returns the registry grouped by bank with totals.
func (s *Service) Balances(ctx context.Context) (domain.RegistrySummary, error) {
	entries, err := s.registry.List(ctx)
	if err != nil {
		return domain.RegistrySummary{}, fmt.Errorf("Balances: listing registry: %w", err)
	}
	return domain.Summarize(entries), nil
}

// requireAccounts checks that every non-cash key exists in the registry
// before anything is written.
func (s *Service) requireAccounts(ctx context.Context, keys ...domain.AccountKey) error {
	for _, k := range keys {
		if domain.IsCashBank(k.Bank) {
			continue
		}
		if _, err := s.registry.FindByKey(ctx, k.Bank, k.Account); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NotFoundf("account %s is not registered", k)
			}
			return fmt.Errorf("looking up account %s: %w", k, err)
		}
	}
	return nil
}

// appendAndReconcile writes rec, applies its full amount to the account and
// stores the resulting balance snapshot on the record.
func (s *Service) appendAndReconcile(ctx context.Context, o *operation, rec domain.Transaction) (domain.Transaction, *domain.AccountEntry, error) {
	if _, err := s.store.Append(ctx, rec); err != nil {
		return rec, nil, o.fail("ledger append "+rec.ID, err)
	}
	o.commit("ledger append "+rec.ID, rec, decimal.Zero)

	entry, err := s.reconcile(ctx, o, rec, rec.Amount)
	if err != nil {
		return rec, nil, err
	}
	if entry != nil {
		rec.BalanceLeft = s.snapshot(ctx, rec.ID, entry.Balance)
	}
	return rec, entry, nil
}

// reconcile moves the balance of rec's account by delta. Cash records and
// zero deltas are skipped.
func (s *Service) reconcile(ctx context.Context, o *operation, rec domain.Transaction, delta decimal.Decimal) (*domain.AccountEntry, error) {
	if rec.IsCash() || delta.IsZero() {
		return nil, nil
	}

	step := fmt.Sprintf("balance %s %s", rec.Key(), delta.String())
	entry, err := s.registry.AdjustBalance(ctx, rec.Bank, rec.Account, delta)
	if err != nil {
		return nil, o.fail(step, err)
	}
	o.commit(step, rec, delta)

	log := logger.FromContext(ctx)
	log.Debug().
		Str("record_id", rec.ID).
		Str("bank", rec.Bank).
		Str("account", rec.Account).
		Str("delta", delta.String()).
		Str("balance", entry.Balance.String()).
		Msg("Balance adjusted")

	return &entry, nil
}

// snapshot writes the balance-left column. The snapshot is informational,
// so a failure is logged and does not fail the mutation.
func (s *Service) snapshot(ctx context.Context, id string, balance decimal.Decimal) *decimal.Decimal {
	if err := s.store.UpdateField(ctx, id, FieldBalanceLeft, balance.String()); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("record_id", id).
			Msg("Failed to write balance snapshot")
		return nil
	}
	return &balance
}

func (r *MutationResult) add(rec domain.Transaction, entry *domain.AccountEntry) {
	r.Records = append(r.Records, rec)
	if entry != nil {
		r.Balances = append(r.Balances, *entry)
	}
}

func refundedAmount(records []domain.Transaction, originalID string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.Type == domain.TypeRefund && r.LinkedID == originalID {
			total = total.Add(r.Amount)
		}
	}
	return total
}

func refundStatus(refunded, original decimal.Decimal) string {
	if refunded.GreaterThanOrEqual(original) {
		return "Refunded"
	}
	return fmt.Sprintf("Partially refunded (%s)", refunded.StringFixed(2))
}
