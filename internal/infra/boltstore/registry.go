package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"
)

// Registry stores accounts in insertion order with a (bank, account) index.
type Registry struct {
	db *bolt.DB
}

func accountKey(bank, account string) []byte {
	return []byte(bank + "\x00" + account)
}

// ReplaceAll implements ledger.Registry. Both buckets are rebuilt in one
// transaction.
func (r *Registry) ReplaceAll(ctx context.Context, entries []domain.AccountEntry) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		b, err := resetBucket(tx, BucketAccounts)
		if err != nil {
			return err
		}
		idx, err := resetBucket(tx, BucketAccountIdx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if err := putJSON(b, itob(seq), e); err != nil {
				return err
			}
			if err := idx.Put(accountKey(e.Bank, e.Account), itob(seq)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ReplaceAll: %w", err)
	}
	return nil
}

// List implements ledger.Registry.
func (r *Registry) List(ctx context.Context) ([]domain.AccountEntry, error) {
	var entries []domain.AccountEntry
	err := r.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketAccounts)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var e domain.AccountEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal account: %w", err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return entries, nil
}

// FindByKey implements ledger.Registry.
func (r *Registry) FindByKey(ctx context.Context, bank, account string) (domain.AccountEntry, error) {
	var e domain.AccountEntry
	err := r.db.View(func(tx *bolt.Tx) error {
		b, key, err := findAccount(tx, bank, account)
		if err != nil {
			return err
		}
		return json.Unmarshal(b.Get(key), &e)
	})
	if err != nil {
		return domain.AccountEntry{}, fmt.Errorf("FindByKey: %w", err)
	}
	return e, nil
}

// AdjustBalance implements ledger.Registry. The read-modify-write runs in a
// single bolt transaction.
func (r *Registry) AdjustBalance(ctx context.Context, bank, account string, delta decimal.Decimal) (domain.AccountEntry, error) {
	var e domain.AccountEntry
	err := r.db.Update(func(tx *bolt.Tx) error {
		b, key, err := findAccount(tx, bank, account)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b.Get(key), &e); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		e.Balance = e.Balance.Add(delta)
		return putJSON(b, key, e)
	})
	if err != nil {
		return domain.AccountEntry{}, fmt.Errorf("AdjustBalance: %w", err)
	}
	return e, nil
}

func findAccount(tx *bolt.Tx, bank, account string) (*bolt.Bucket, []byte, error) {
	idx, err := bucket(tx, BucketAccountIdx)
	if err != nil {
		return nil, nil, err
	}
	key := idx.Get(accountKey(bank, account))
	if key == nil {
		return nil, nil, domain.NotFoundf("account %s/%s", bank, account)
	}
	b, err := bucket(tx, BucketAccounts)
	if err != nil {
		return nil, nil, err
	}
	return b, append([]byte(nil), key...), nil
}

// Ensure Registry implements ledger.Registry
var _ ledger.Registry = (*Registry)(nil)
