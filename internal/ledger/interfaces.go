// Package ledger keeps the account registry consistent with the transaction
// ledger. Every mutation goes through Service, which serializes the ledger
// write and its balance adjustments behind a single lock.
package ledger

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
)

// Field names a single ledger column that can be overwritten in place.
type Field string

const (
	FieldPurpose      Field = "Purpose"
	FieldBalanceLeft  Field = "BalanceLeft"
	FieldRefundStatus Field = "RefundStatus"
)

// SetField applies a single-column update to rec.
func SetField(rec *domain.Transaction, field Field, value string) error {
	switch field {
	case FieldPurpose:
		rec.Purpose = value
	case FieldRefundStatus:
		rec.RefundStatus = value
	case FieldBalanceLeft:
		if value == "" {
			rec.BalanceLeft = nil
			return nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("SetField: balance %q: %w", value, err)
		}
		rec.BalanceLeft = &d
	default:
		return fmt.Errorf("SetField: unsupported field %q", field)
	}
	return nil
}

// Store is the ordered transaction table.
type Store interface {
	// Append adds rec at the end and returns its id.
	Append(ctx context.Context, rec domain.Transaction) (string, error)

	// ReadAll materializes every record in store order with Position set.
	ReadAll(ctx context.Context) ([]domain.Transaction, error)

	// ReadOne returns the record with the given id or domain.ErrNotFound.
	ReadOne(ctx context.Context, id string) (domain.Transaction, error)

	// Replace overwrites the record identified by rec.ID in place.
	Replace(ctx context.Context, rec domain.Transaction) error

	// Remove deletes the record. Positions of later records shift down;
	// ids do not change.
	Remove(ctx context.Context, id string) error

	// UpdateField overwrites one column of one record.
	UpdateField(ctx context.Context, id string, field Field, value string) error
}

// Registry is the per-account balance table.
type Registry interface {
	// ReplaceAll destructively overwrites every entry.
	ReplaceAll(ctx context.Context, entries []domain.AccountEntry) error

	// List returns every entry in registry order.
	List(ctx context.Context) ([]domain.AccountEntry, error)

	// FindByKey returns the entry for (bank, account) or domain.ErrNotFound.
	FindByKey(ctx context.Context, bank, account string) (domain.AccountEntry, error)

	// AdjustBalance adds delta to the current balance and returns the
	// updated entry.
	AdjustBalance(ctx context.Context, bank, account string, delta decimal.Decimal) (domain.AccountEntry, error)
}

// Auditor receives one entry per applied mutation.
type Auditor interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}
