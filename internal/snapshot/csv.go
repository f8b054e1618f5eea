// Package snapshot exports the ledger and the account registry as CSV
// files and uploads them to Cloud Storage.
package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dvloznov/finance-manager/internal/domain"
)

var registryHeader = []string{"Bank", "Account", "Type", "Balance"}

// WriteLedgerCSV writes a header row followed by one row per record, in
// the order given.
func WriteLedgerCSV(w io.Writer, records []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.TransactionColumns); err != nil {
		return fmt.Errorf("WriteLedgerCSV: header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.Values()); err != nil {
			return fmt.Errorf("WriteLedgerCSV: record %s: %w", rec.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteLedgerCSV: %w", err)
	}
	return nil
}

// WriteRegistryCSV writes the account registry.
func WriteRegistryCSV(w io.Writer, entries []domain.AccountEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(registryHeader); err != nil {
		return fmt.Errorf("WriteRegistryCSV: header: %w", err)
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Bank, e.Account, e.Type, e.Balance.String()}); err != nil {
			return fmt.Errorf("WriteRegistryCSV: %s: %w", e.Key(), err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteRegistryCSV: %w", err)
	}
	return nil
}
