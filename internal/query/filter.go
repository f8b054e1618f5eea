// Package query filters a materialized ledger snapshot in memory.
package query

import (
	"net/url"
	"strings"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
)

// Filter is a conjunction of optional predicates. Zero-valued fields are
// inactive; the zero Filter matches every record.
type Filter struct {
	DateStart string // inclusive, ISO YYYY-MM-DD
	DateEnd   string // inclusive, ISO YYYY-MM-DD
	Bank      string
	Account   string
	Type      string
	Direction domain.Direction
	AmountMin *decimal.Decimal // inclusive, signed amount
	AmountMax *decimal.Decimal // inclusive, signed amount
	Keyword   string           // case-insensitive substring of all field values
}

// IsEmpty reports whether no predicate is active.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Match reports whether tx satisfies every active predicate.
func (f Filter) Match(tx domain.Transaction) bool {
	date := tx.Date.String()
	if f.DateStart != "" && date < f.DateStart {
		return false
	}
	if f.DateEnd != "" && date > f.DateEnd {
		return false
	}
	if f.Bank != "" && tx.Bank != f.Bank {
		return false
	}
	if f.Account != "" && tx.Account != f.Account {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Direction != "" && tx.Direction() != f.Direction {
		return false
	}
	if f.AmountMin != nil && tx.Amount.LessThan(*f.AmountMin) {
		return false
	}
	if f.AmountMax != nil && tx.Amount.GreaterThan(*f.AmountMax) {
		return false
	}
	if f.Keyword != "" {
		haystack := strings.ToLower(strings.Join(tx.Values(), " "))
		if !strings.Contains(haystack, strings.ToLower(f.Keyword)) {
			return false
		}
	}
	return true
}

// Apply returns the records matching f, preserving their relative order.
func Apply(records []domain.Transaction, f Filter) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(records))
	for _, tx := range records {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// ParseFilter builds a Filter from query parameters:
// date_start, date_end, bank, account, type, direction, amount_min,
// amount_max and keyword. Malformed values yield a *domain.ValidationError.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Bank:    strings.TrimSpace(q.Get("bank")),
		Account: strings.TrimSpace(q.Get("account")),
		Type:    strings.TrimSpace(q.Get("type")),
		Keyword: strings.TrimSpace(q.Get("keyword")),
	}

	if s := q.Get("date_start"); s != "" {
		d, err := domain.ParseDate("date_start", s)
		if err != nil {
			return Filter{}, err
		}
		f.DateStart = d.String()
	}
	if s := q.Get("date_end"); s != "" {
		d, err := domain.ParseDate("date_end", s)
		if err != nil {
			return Filter{}, err
		}
		f.DateEnd = d.String()
	}
	if s := q.Get("direction"); s != "" {
		d, err := domain.ParseDirection(s)
		if err != nil {
			return Filter{}, domain.NewValidationError("direction", "must be Incoming or Outgoing")
		}
		f.Direction = d
	}
	if s := q.Get("amount_min"); s != "" {
		d, err := domain.ParseAmount("amount_min", s)
		if err != nil {
			return Filter{}, err
		}
		f.AmountMin = &d
	}
	if s := q.Get("amount_max"); s != "" {
		d, err := domain.ParseAmount("amount_max", s)
		if err != nil {
			return Filter{}, err
		}
		f.AmountMax = &d
	}

	if f.AmountMin != nil && f.AmountMax != nil && f.AmountMin.GreaterThan(*f.AmountMax) {
		return Filter{}, domain.NewValidationError("amount_min", "must not exceed amount_max")
	}
	if f.DateStart != "" && f.DateEnd != "" && f.DateStart > f.DateEnd {
		return Filter{}, domain.NewValidationError("date_start", "must not be after date_end")
	}

	return f, nil
}
