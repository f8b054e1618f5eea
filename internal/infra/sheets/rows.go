package sheets

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
)

// Column headers written to new sheets.
var (
	LedgerColumns   = domain.TransactionColumns
	RegistryColumns = []string{"Bank", "Account", "Type", "Balance"}
)

// Header spellings found in hand-made sheets.
var headerAliases = map[string]string{
	"transactiondirection": "direction",
	"accountname":          "account",
	"accounttype":          "type",
	"refund":               "refundstatus",
	"linked":               "linkedid",
}

// sheetsEpoch is day zero of spreadsheet date serial numbers.
var sheetsEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// layout maps canonical column names to zero-based column indexes.
type layout struct {
	index map[string]int
	width int
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

// newLayout reads a header row. Unknown headers are kept in place so that
// user-added columns survive row rewrites.
func newLayout(header []interface{}) *layout {
	l := &layout{index: make(map[string]int), width: len(header)}
	for i, cell := range header {
		name := normalizeHeader(cellString(cell))
		if name == "" {
			continue
		}
		if _, dup := l.index[name]; !dup {
			l.index[name] = i
		}
	}
	return l
}

// defaultLayout is the layout of a sheet created with columns.
func defaultLayout(columns []string) *layout {
	return newLayout(headerRow(columns))
}

// missing returns the columns not present in the header.
func (l *layout) missing(columns []string) []string {
	var out []string
	for _, c := range columns {
		if _, ok := l.index[normalizeHeader(c)]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// extend appends columns to the right of the header.
func (l *layout) extend(columns []string) {
	for _, c := range columns {
		l.index[normalizeHeader(c)] = l.width
		l.width++
	}
}

func (l *layout) cell(row []interface{}, column string) interface{} {
	i, ok := l.index[normalizeHeader(column)]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

// letter returns the A1 column letter of column.
func (l *layout) letter(column string) (string, error) {
	i, ok := l.index[normalizeHeader(column)]
	if !ok {
		return "", fmt.Errorf("column %q not present in header", column)
	}
	return columnLetter(i), nil
}

// encode places values by column name into a row as wide as the header.
// Cells of unknown columns are left nil, which the API leaves unchanged.
func (l *layout) encode(values map[string]interface{}) []interface{} {
	row := make([]interface{}, l.width)
	for name, v := range values {
		if i, ok := l.index[normalizeHeader(name)]; ok {
			row[i] = v
		}
	}
	return row
}

// columnLetter converts a zero-based index to A1 letters (0 -> A, 26 -> AA).
func columnLetter(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}

func isBlankRow(row []interface{}) bool {
	for _, c := range row {
		if cellString(c) != "" {
			return false
		}
	}
	return true
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func cellDecimal(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	}
	s := strings.NewReplacer(",", "", "$", "").Replace(cellString(v))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func cellOptionalDecimal(v interface{}) (*decimal.Decimal, error) {
	if cellString(v) == "" {
		return nil, nil
	}
	d, err := cellDecimal(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// cellDate accepts ISO strings and date serial numbers.
func cellDate(v interface{}) (civil.Date, error) {
	if f, ok := v.(float64); ok {
		return civil.DateOf(sheetsEpoch.AddDate(0, 0, int(math.Floor(f)))), nil
	}
	return civil.ParseDate(cellString(v))
}

// cellClock accepts HH:MM strings and day-fraction serial numbers.
func cellClock(v interface{}) string {
	if f, ok := v.(float64); ok && f < 1 {
		minutes := int(math.Round(f * 24 * 60))
		return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	}
	return cellString(v)
}

// decodeTransaction reads one ledger row. The Direction column is a view of
// the amount's sign and is ignored.
func decodeTransaction(l *layout, row []interface{}) (domain.Transaction, error) {
	date, err := cellDate(l.cell(row, "Date"))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("date: %w", err)
	}
	amount, err := cellDecimal(l.cell(row, "Amount"))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("amount: %w", err)
	}
	balance, err := cellOptionalDecimal(l.cell(row, "BalanceLeft"))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("balance left: %w", err)
	}

	return domain.Transaction{
		ID:           cellString(l.cell(row, "ID")),
		Date:         date,
		Time:         cellClock(l.cell(row, "Time")),
		Type:         cellString(l.cell(row, "Type")),
		Bank:         cellString(l.cell(row, "Bank")),
		Account:      cellString(l.cell(row, "Account")),
		Amount:       amount,
		Purpose:      cellString(l.cell(row, "Purpose")),
		BalanceLeft:  balance,
		RefundStatus: cellString(l.cell(row, "RefundStatus")),
		LinkedID:     cellString(l.cell(row, "LinkedID")),
	}, nil
}

// encodeTransaction renders rec as column values. Amounts are written as
// numbers so the sheet can sum them.
func encodeTransaction(rec domain.Transaction) map[string]interface{} {
	var balance interface{} = ""
	if rec.BalanceLeft != nil {
		balance = rec.BalanceLeft.InexactFloat64()
	}
	return map[string]interface{}{
		"ID":           rec.ID,
		"Date":         rec.Date.String(),
		"Time":         rec.Time,
		"Type":         rec.Type,
		"Bank":         rec.Bank,
		"Account":      rec.Account,
		"Direction":    string(rec.Direction()),
		"Amount":       rec.Amount.InexactFloat64(),
		"Purpose":      rec.Purpose,
		"BalanceLeft":  balance,
		"RefundStatus": rec.RefundStatus,
		"LinkedID":     rec.LinkedID,
	}
}

func decodeAccount(l *layout, row []interface{}) (domain.AccountEntry, error) {
	balance, err := cellDecimal(l.cell(row, "Balance"))
	if err != nil {
		return domain.AccountEntry{}, fmt.Errorf("balance: %w", err)
	}
	return domain.AccountEntry{
		Bank:    cellString(l.cell(row, "Bank")),
		Account: cellString(l.cell(row, "Account")),
		Type:    cellString(l.cell(row, "Type")),
		Balance: balance,
	}, nil
}

func encodeAccount(e domain.AccountEntry) map[string]interface{} {
	return map[string]interface{}{
		"Bank":    e.Bank,
		"Account": e.Account,
		"Type":    e.Type,
		"Balance": e.Balance.InexactFloat64(),
	}
}

func headerRow(columns []string) []interface{} {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	return row
}
