// Package boltstore keeps the ledger and the account registry in a local
// bbolt file. It is the durable backend for running without a spreadsheet.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Bucket names.
const (
	BucketLedger     = "ledger"      // sequence -> transaction JSON
	BucketLedgerIDs  = "ledger_ids"  // transaction id -> sequence
	BucketAccounts   = "accounts"    // sequence -> account JSON
	BucketAccountIdx = "account_idx" // bank/account -> sequence
)

var buckets = []string{BucketLedger, BucketLedgerIDs, BucketAccounts, BucketAccountIdx}

// DB wraps the bbolt database.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the database file and initializes buckets.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ledger returns the ledger store view of the database.
func (d *DB) Ledger() *Ledger {
	return &Ledger{db: d.db}
}

// Registry returns the account registry view of the database.
func (d *DB) Registry() *Registry {
	return &Registry{db: d.db}
}

func bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket %s not found", name)
	}
	return b, nil
}

// resetBucket drops and recreates a bucket inside tx.
func resetBucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
		return nil, err
	}
	return tx.CreateBucket([]byte(name))
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return b.Put(key, data)
}

// itob encodes a sequence as a big-endian key so cursor order is
// insertion order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
