package sheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/google/uuid"
)

// LedgerStore keeps transactions one per row, below a header row.
type LedgerStore struct {
	client *Client
	sheet  string
}

// NewLedgerStore creates a ledger store over the named worksheet.
func NewLedgerStore(client *Client, sheet string) *LedgerStore {
	return &LedgerStore{client: client, sheet: sheet}
}

type ledgerTable struct {
	layout  *layout // nil for an empty sheet
	records []domain.Transaction
	rows    []int // 1-based sheet row of each record
}

func (t *ledgerTable) find(id string) int {
	for i, r := range t.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// legacyID identifies rows written before ids existed. It is positional and
// only stable until rows above it are deleted, so it is never written back
// to the ID column.
func legacyID(row int) string {
	return fmt.Sprintf("row-%d", row)
}

func isLegacyID(id string) bool {
	n := strings.TrimPrefix(id, "row-")
	if n == id || n == "" {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}

func (s *LedgerStore) load(ctx context.Context) (*ledgerTable, error) {
	values, err := s.client.getValues(ctx, s.sheet)
	if err != nil {
		return nil, err
	}
	t := &ledgerTable{}
	if len(values) == 0 {
		return t, nil
	}

	t.layout = newLayout(values[0])
	for i, row := range values[1:] {
		sheetRow := i + 2
		if isBlankRow(row) {
			continue
		}
		rec, err := decodeTransaction(t.layout, row)
		if err != nil {
			return nil, fmt.Errorf("load: %s row %d: %w", s.sheet, sheetRow, err)
		}
		if rec.ID == "" || isLegacyID(rec.ID) {
			rec.ID = legacyID(sheetRow)
		}
		rec.Position = len(t.records) + 1
		t.records = append(t.records, rec)
		t.rows = append(t.rows, sheetRow)
	}
	return t, nil
}

// ensureHeader writes the header row to an empty sheet and appends any
// missing ledger columns to an existing one.
func (s *LedgerStore) ensureHeader(ctx context.Context, t *ledgerTable) error {
	if t.layout == nil {
		if err := s.client.updateRange(ctx, s.sheet, "A1", [][]interface{}{headerRow(LedgerColumns)}); err != nil {
			return fmt.Errorf("ensureHeader: %w", err)
		}
		t.layout = defaultLayout(LedgerColumns)
		return nil
	}

	missing := t.layout.missing(LedgerColumns)
	if len(missing) == 0 {
		return nil
	}
	cell := columnLetter(t.layout.width) + "1"
	if err := s.client.updateRange(ctx, s.sheet, cell, [][]interface{}{headerRow(missing)}); err != nil {
		return fmt.Errorf("ensureHeader: %w", err)
	}
	t.layout.extend(missing)
	return nil
}

// Append implements ledger.Store. A transient failure is retried only after
// confirming the record did not land.
func (s *LedgerStore) Append(ctx context.Context, rec domain.Transaction) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	t, err := s.load(ctx)
	if err != nil {
		return "", fmt.Errorf("Append: %w", err)
	}
	if err := s.ensureHeader(ctx, t); err != nil {
		return "", fmt.Errorf("Append: %w", err)
	}
	rows := [][]interface{}{t.layout.encode(encodeTransaction(rec))}

	for attempt := 0; ; attempt++ {
		err = s.client.appendRows(ctx, s.sheet, rows)
		if err == nil {
			return rec.ID, nil
		}
		if !s.client.retryable(err, attempt) {
			return "", fmt.Errorf("Append: %w", err)
		}
		if werr := s.client.wait(ctx, "append "+s.sheet, attempt, err); werr != nil {
			return "", fmt.Errorf("Append: %w", werr)
		}
		if current, lerr := s.load(ctx); lerr == nil && current.find(rec.ID) >= 0 {
			return rec.ID, nil
		}
	}
}

// ReadAll implements ledger.Store.
func (s *LedgerStore) ReadAll(ctx context.Context) ([]domain.Transaction, error) {
	t, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadAll: %w", err)
	}
	return t.records, nil
}

// ReadOne implements ledger.Store.
func (s *LedgerStore) ReadOne(ctx context.Context, id string) (domain.Transaction, error) {
	t, i, err := s.locate(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ReadOne: %w", err)
	}
	return t.records[i], nil
}

// Replace implements ledger.Store.
func (s *LedgerStore) Replace(ctx context.Context, rec domain.Transaction) error {
	t, i, err := s.locate(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	if err := s.ensureHeader(ctx, t); err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	if isLegacyID(rec.ID) {
		rec.ID = ""
	}
	row := t.layout.encode(encodeTransaction(rec))
	if err := s.client.updateRange(ctx, s.sheet, fmt.Sprintf("A%d", t.rows[i]), [][]interface{}{row}); err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	return nil
}

// Remove implements ledger.Store.
func (s *LedgerStore) Remove(ctx context.Context, id string) error {
	t, i, err := s.locate(ctx, id)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	if err := s.client.deleteRow(ctx, s.sheet, t.rows[i]); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

// UpdateField implements ledger.Store.
func (s *LedgerStore) UpdateField(ctx context.Context, id string, field ledger.Field, value string) error {
	t, i, err := s.locate(ctx, id)
	if err != nil {
		return fmt.Errorf("UpdateField: %w", err)
	}
	if err := s.ensureHeader(ctx, t); err != nil {
		return fmt.Errorf("UpdateField: %w", err)
	}
	col, err := t.layout.letter(string(field))
	if err != nil {
		return fmt.Errorf("UpdateField: %w", err)
	}

	var cell interface{} = value
	if field == ledger.FieldBalanceLeft && value != "" {
		d, err := cellDecimal(value)
		if err != nil {
			return fmt.Errorf("UpdateField: balance %q: %w", value, err)
		}
		cell = d.InexactFloat64()
	}

	rng := fmt.Sprintf("%s%d", col, t.rows[i])
	if err := s.client.updateRange(ctx, s.sheet, rng, [][]interface{}{{cell}}); err != nil {
		return fmt.Errorf("UpdateField: %w", err)
	}
	return nil
}

func (s *LedgerStore) locate(ctx context.Context, id string) (*ledgerTable, int, error) {
	if id == "" {
		return nil, -1, errors.New("empty transaction id")
	}
	t, err := s.load(ctx)
	if err != nil {
		return nil, -1, err
	}
	i := t.find(id)
	if i < 0 {
		return nil, -1, domain.NotFoundf("transaction %s", id)
	}
	return t, i, nil
}

// Ensure LedgerStore implements ledger.Store
var _ ledger.Store = (*LedgerStore)(nil)
