package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// CashBank is the sentinel bank label for cash transactions.
// Cash transactions are recorded in the ledger but never reconciled
// against the account registry.
const CashBank = "Cash"

// Well-known transaction types.
const (
	TypeInterac        = "Interac"
	TypeRefund         = "Refund"
	TypeOpeningBalance = "Opening Balance"
)

// Direction is a view over the sign of a signed amount.
type Direction string

const (
	Incoming Direction = "Incoming"
	Outgoing Direction = "Outgoing"
)

// ParseDirection accepts "Incoming" or "Outgoing" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming":
		return Incoming, nil
	case "outgoing":
		return Outgoing, nil
	}
	return "", NewValidationError("transaction_direction", fmt.Sprintf("must be Incoming or Outgoing, got %q", s))
}

// Sign applies a direction to an amount: Outgoing yields -|amount|,
// Incoming yields +|amount|.
func Sign(d Direction, amount decimal.Decimal) decimal.Decimal {
	if d == Outgoing {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// DirectionOf derives the direction of a signed amount. Zero counts as Incoming.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return Outgoing
	}
	return Incoming
}

// Transaction is one ledger record. Amount is signed and is the only
// stored representation of direction.
type Transaction struct {
	ID           string           `json:"id"`
	Position     int              `json:"position"` // 1-based order in the store, rendering only
	Date         civil.Date       `json:"date"`
	Time         string           `json:"time,omitempty"`
	Type         string           `json:"type"`
	Bank         string           `json:"bank"`
	Account      string           `json:"account"`
	Amount       decimal.Decimal  `json:"amount"`
	Purpose      string           `json:"purpose"`
	BalanceLeft  *decimal.Decimal `json:"balance_left,omitempty"`
	RefundStatus string           `json:"refund_status,omitempty"`
	LinkedID     string           `json:"linked_id,omitempty"`
}

// Direction returns the direction derived from the signed amount.
func (t Transaction) Direction() Direction {
	return DirectionOf(t.Amount)
}

// IsCash reports whether the record bypasses balance reconciliation.
func (t Transaction) IsCash() bool {
	return IsCashBank(t.Bank)
}

// Key returns the registry key the record reconciles against.
func (t Transaction) Key() AccountKey {
	return AccountKey{Bank: t.Bank, Account: t.Account}
}

// TransactionColumns names the fields returned by Values, in order.
var TransactionColumns = []string{
	"ID", "Date", "Time", "Type", "Bank", "Account", "Direction",
	"Amount", "Purpose", "BalanceLeft", "RefundStatus", "LinkedID",
}

// Values returns every field rendered as text, in ledger column order.
// Used for keyword search and CSV snapshots.
func (t Transaction) Values() []string {
	balance := ""
	if t.BalanceLeft != nil {
		balance = t.BalanceLeft.String()
	}
	return []string{
		t.ID,
		t.Date.String(),
		t.Time,
		t.Type,
		t.Bank,
		t.Account,
		string(t.Direction()),
		t.Amount.String(),
		t.Purpose,
		balance,
		t.RefundStatus,
		t.LinkedID,
	}
}

// IsCashBank reports whether bank is the cash sentinel.
func IsCashBank(bank string) bool {
	return strings.EqualFold(strings.TrimSpace(bank), CashBank)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(field, s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, NewValidationError(field, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return d, nil
}

// ParseClock validates an optional HH:MM time of day. Empty is allowed.
func ParseClock(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return "", NewValidationError(field, fmt.Sprintf("invalid time %q, expected HH:MM", s))
	}
	return s, nil
}

// ParseAmount parses a decimal amount string.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewValidationError(field, "is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError(field, fmt.Sprintf("not a number: %q", s))
	}
	return d, nil
}

// ParsePositiveAmount parses an amount that must be strictly greater than zero.
func ParsePositiveAmount(field, s string) (decimal.Decimal, error) {
	d, err := ParseAmount(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, NewValidationError(field, "must be greater than zero")
	}
	return d, nil
}
