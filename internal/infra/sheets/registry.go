package sheets

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/shopspring/decimal"
)

// Registry keeps one account per row under a Bank, Account, Type, Balance
// header.
type Registry struct {
	client *Client
	sheet  string
}

// NewRegistry creates a registry over the named worksheet.
func NewRegistry(client *Client, sheet string) *Registry {
	return &Registry{client: client, sheet: sheet}
}

type registryTable struct {
	layout  *layout
	entries []domain.AccountEntry
	rows    []int
}

func (t *registryTable) find(bank, account string) int {
	for i, e := range t.entries {
		if e.Bank == bank && e.Account == account {
			return i
		}
	}
	return -1
}

func (r *Registry) load(ctx context.Context) (*registryTable, error) {
	values, err := r.client.getValues(ctx, r.sheet)
	if err != nil {
		return nil, err
	}
	t := &registryTable{}
	if len(values) == 0 {
		return t, nil
	}

	t.layout = newLayout(values[0])
	for i, row := range values[1:] {
		if isBlankRow(row) {
			continue
		}
		e, err := decodeAccount(t.layout, row)
		if err != nil {
			return nil, fmt.Errorf("load: %s row %d: %w", r.sheet, i+2, err)
		}
		t.entries = append(t.entries, e)
		t.rows = append(t.rows, i+2)
	}
	return t, nil
}

// ReplaceAll implements ledger.Registry. The sheet is rewritten with a fresh
// header in a single update that also blanks whatever the old contents
// covered beyond the new rows, so a failed write leaves the old registry in
// place.
func (r *Registry) ReplaceAll(ctx context.Context, entries []domain.AccountEntry) error {
	old, err := r.client.getValues(ctx, r.sheet)
	if err != nil {
		return fmt.Errorf("ReplaceAll: %w", err)
	}

	l := defaultLayout(RegistryColumns)
	rows := [][]interface{}{headerRow(RegistryColumns)}
	for _, e := range entries {
		rows = append(rows, l.encode(encodeAccount(e)))
	}

	if err := r.client.updateRange(ctx, r.sheet, "A1", overwrite(rows, old)); err != nil {
		return fmt.Errorf("ReplaceAll: %w", err)
	}
	return nil
}

// overwrite pads rows with empty cells until it covers every cell of old.
func overwrite(rows, old [][]interface{}) [][]interface{} {
	width := 0
	for _, grid := range [][][]interface{}{rows, old} {
		for _, row := range grid {
			if len(row) > width {
				width = len(row)
			}
		}
	}
	height := len(rows)
	if len(old) > height {
		height = len(old)
	}

	out := make([][]interface{}, height)
	for i := range out {
		out[i] = make([]interface{}, width)
		for j := range out[i] {
			out[i][j] = ""
		}
		if i < len(rows) {
			for j, v := range rows[i] {
				if v != nil {
					out[i][j] = v
				}
			}
		}
	}
	return out
}

// List implements ledger.Registry.
func (r *Registry) List(ctx context.Context) ([]domain.AccountEntry, error) {
	t, err := r.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return t.entries, nil
}

// FindByKey implements ledger.Registry.
func (r *Registry) FindByKey(ctx context.Context, bank, account string) (domain.AccountEntry, error) {
	t, err := r.load(ctx)
	if err != nil {
		return domain.AccountEntry{}, fmt.Errorf("FindByKey: %w", err)
	}
	i := t.find(bank, account)
	if i < 0 {
		return domain.AccountEntry{}, domain.NotFoundf("account %s/%s", bank, account)
	}
	return t.entries[i], nil
}

// AdjustBalance implements ledger.Registry. The read and the single-cell
// write are not atomic on the sheet; callers serialize mutations.
func (r *Registry) AdjustBalance(ctx context.Context, bank, account string, delta decimal.Decimal) (domain.AccountEntry, error) {
	t, err := r.load(ctx)
	if err != nil {
		return domain.AccountEntry{}, fmt.Errorf("AdjustBalance: %w", err)
	}
	i := t.find(bank, account)
	if i < 0 {
		return domain.AccountEntry{}, domain.NotFoundf("account %s/%s", bank, account)
	}
	col, err := t.layout.letter("Balance")
	if err != nil {
		return domain.AccountEntry{}, fmt.Errorf("AdjustBalance: %w", err)
	}

	entry := t.entries[i]
	entry.Balance = entry.Balance.Add(delta)
	rng := fmt.Sprintf("%s%d", col, t.rows[i])
	if err := r.client.updateRange(ctx, r.sheet, rng, [][]interface{}{{entry.Balance.InexactFloat64()}}); err != nil {
		return domain.AccountEntry{}, fmt.Errorf("AdjustBalance: %w", err)
	}
	return entry, nil
}

// Ensure Registry implements ledger.Registry
var _ ledger.Registry = (*Registry)(nil)
