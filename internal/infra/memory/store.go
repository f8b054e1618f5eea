// Package memory provides in-memory implementations of the ledger store and
// account registry. Data is lost on restart; use it for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is an in-memory ledger. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []domain.Transaction
}

// NewStore creates an empty in-memory ledger.
func NewStore() *Store {
	return &Store{}
}

// Append implements ledger.Store.
func (s *Store) Append(ctx context.Context, rec domain.Transaction) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, copyRecord(rec))
	return rec.ID, nil
}

// ReadAll implements ledger.Store.
func (s *Store) ReadAll(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, len(s.records))
	for i, r := range s.records {
		out[i] = copyRecord(r)
		out[i].Position = i + 1
	}
	return out, nil
}

// ReadOne implements ledger.Store.
func (s *Store) ReadOne(ctx context.Context, id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.Transaction{}, domain.NotFoundf("transaction %s", id)
	}
	rec := copyRecord(s.records[i])
	rec.Position = i + 1
	return rec, nil
}

// Replace implements ledger.Store.
func (s *Store) Replace(ctx context.Context, rec domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(rec.ID)
	if i < 0 {
		return domain.NotFoundf("transaction %s", rec.ID)
	}
	s.records[i] = copyRecord(rec)
	return nil
}

// Remove implements ledger.Store.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.NotFoundf("transaction %s", id)
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return nil
}

// UpdateField implements ledger.Store.
func (s *Store) UpdateField(ctx context.Context, id string, field ledger.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.NotFoundf("transaction %s", id)
	}
	return ledger.SetField(&s.records[i], field, value)
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func copyRecord(r domain.Transaction) domain.Transaction {
	if r.BalanceLeft != nil {
		b := *r.BalanceLeft
		r.BalanceLeft = &b
	}
	return r
}

// Registry is an in-memory account registry. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []domain.AccountEntry
}

// NewRegistry creates a registry holding the given entries.
func NewRegistry(entries ...domain.AccountEntry) *Registry {
	return &Registry{entries: append([]domain.AccountEntry(nil), entries...)}
}

// ReplaceAll implements ledger.Registry.
func (r *Registry) ReplaceAll(ctx context.Context, entries []domain.AccountEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]domain.AccountEntry(nil), entries...)
	return nil
}

// List implements ledger.Registry.
func (r *Registry) List(ctx context.Context) ([]domain.AccountEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.AccountEntry(nil), r.entries...), nil
}

// FindByKey implements ledger.Registry.
func (r *Registry) FindByKey(ctx context.Context, bank, account string) (domain.AccountEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Bank == bank && e.Account == account {
			return e, nil
		}
	}
	return domain.AccountEntry{}, domain.NotFoundf("account %s/%s", bank, account)
}

// AdjustBalance implements ledger.Registry. The read-modify-write happens
// under the registry lock.
func (r *Registry) AdjustBalance(ctx context.Context, bank, account string, delta decimal.Decimal) (domain.AccountEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.Bank == bank && e.Account == account {
			r.entries[i].Balance = e.Balance.Add(delta)
			return r.entries[i], nil
		}
	}
	return domain.AccountEntry{}, domain.NotFoundf("account %s/%s", bank, account)
}

// Ensure Store and Registry implement the ledger contracts.
var _ ledger.Store = (*Store)(nil)
var _ ledger.Registry = (*Registry)(nil)
