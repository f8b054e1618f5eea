package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Ledger stores transactions keyed by insertion sequence, with a secondary
// index from transaction id to sequence.
type Ledger struct {
	db *bolt.DB
}

// Append implements ledger.Store.
func (l *Ledger) Append(ctx context.Context, rec domain.Transaction) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Position = 0

	err := l.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketLedger)
		if err != nil {
			return err
		}
		ids, err := bucket(tx, BucketLedgerIDs)
		if err != nil {
			return err
		}
		if ids.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("transaction %s already exists", rec.ID)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := itob(seq)
		if err := putJSON(b, key, rec); err != nil {
			return err
		}
		return ids.Put([]byte(rec.ID), key)
	})
	if err != nil {
		return "", fmt.Errorf("Append: %w", err)
	}
	return rec.ID, nil
}

// ReadAll implements ledger.Store.
func (l *Ledger) ReadAll(ctx context.Context) ([]domain.Transaction, error) {
	var records []domain.Transaction
	err := l.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketLedger)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var rec domain.Transaction
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal transaction: %w", err)
			}
			rec.Position = len(records) + 1
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	return records, nil
}

// ReadOne implements ledger.Store. Position is computed by counting the
// keys before the record.
func (l *Ledger) ReadOne(ctx context.Context, id string) (domain.Transaction, error) {
	var rec domain.Transaction
	err := l.db.View(func(tx *bolt.Tx) error {
		b, key, err := lookup(tx, id)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b.Get(key), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal transaction: %w", err)
		}

		c := b.Cursor()
		pos := 1
		for k, _ := c.First(); k != nil && string(k) < string(key); k, _ = c.Next() {
			pos++
		}
		rec.Position = pos
		return nil
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ReadOne: %w", err)
	}
	return rec, nil
}

// Replace implements ledger.Store.
func (l *Ledger) Replace(ctx context.Context, rec domain.Transaction) error {
	rec.Position = 0
	err := l.db.Update(func(tx *bolt.Tx) error {
		b, key, err := lookup(tx, rec.ID)
		if err != nil {
			return err
		}
		return putJSON(b, key, rec)
	})
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	return nil
}

// Remove implements ledger.Store.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		b, key, err := lookup(tx, id)
		if err != nil {
			return err
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketLedgerIDs)).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

// UpdateField implements ledger.Store.
func (l *Ledger) UpdateField(ctx context.Context, id string, field ledger.Field, value string) error {
	err := l.db.Update(func(tx *bolt.Tx) error {
		b, key, err := lookup(tx, id)
		if err != nil {
			return err
		}
		var rec domain.Transaction
		if err := json.Unmarshal(b.Get(key), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal transaction: %w", err)
		}
		if err := ledger.SetField(&rec, field, value); err != nil {
			return err
		}
		return putJSON(b, key, rec)
	})
	if err != nil {
		return fmt.Errorf("UpdateField: %w", err)
	}
	return nil
}

// lookup resolves a transaction id to the ledger bucket and record key.
func lookup(tx *bolt.Tx, id string) (*bolt.Bucket, []byte, error) {
	ids, err := bucket(tx, BucketLedgerIDs)
	if err != nil {
		return nil, nil, err
	}
	key := ids.Get([]byte(id))
	if key == nil {
		return nil, nil, domain.NotFoundf("transaction %s", id)
	}
	b, err := bucket(tx, BucketLedger)
	if err != nil {
		return nil, nil, err
	}
	if b.Get(key) == nil {
		return nil, nil, domain.NotFoundf("transaction %s", id)
	}
	return b, append([]byte(nil), key...), nil
}

// Ensure Ledger implements ledger.Store
var _ ledger.Store = (*Ledger)(nil)
