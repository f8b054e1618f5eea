package query

import (
	"errors"
	"net/url"
	"reflect"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
)

func record(id, date, bank, account, typ, amount, purpose string) domain.Transaction {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{
		ID:      id,
		Date:    d,
		Type:    typ,
		Bank:    bank,
		Account: account,
		Amount:  decimal.RequireFromString(amount),
		Purpose: purpose,
	}
}

func ids(records []domain.Transaction) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func fixture() []domain.Transaction {
	return []domain.Transaction{
		record("t1", "2024-01-01", "BMO", "Chequing", "Debit", "-20.00", "Coffee"),
		record("t2", "2024-01-02", "RBC", "Savings", "Interac", "150.00", "Paycheque"),
		record("t3", "2024-01-03", "BMO", "Chequing", "Debit", "-85.40", "Groceries at Costco"),
		record("t4", "2024-01-04", "Cash", "Wallet", "Cash", "-5.00", "Parking"),
		record("t5", "2024-01-05", "BMO", "Savings", "Interac", "300.00", "Transfer in"),
	}
}

func TestApply_DateRange(t *testing.T) {
	got := Apply(fixture(), Filter{DateStart: "2024-01-02", DateEnd: "2024-01-04"})
	want := []string{"t2", "t3", "t4"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("Apply(date range) = %v, want %v", ids(got), want)
	}
}

func TestApply_KeywordCaseInsensitive(t *testing.T) {
	got := Apply(fixture(), Filter{Keyword: "costco"})
	if !reflect.DeepEqual(ids(got), []string{"t3"}) {
		t.Errorf("Apply(keyword) = %v, want [t3]", ids(got))
	}
}

func TestApply_EmptyFilterIsIdentity(t *testing.T) {
	records := fixture()
	got := Apply(records, Filter{})
	if !reflect.DeepEqual(ids(got), ids(records)) {
		t.Errorf("Apply(empty) = %v, want %v", ids(got), ids(records))
	}
}

func TestApply_Predicates(t *testing.T) {
	min := decimal.RequireFromString("-50")
	max := decimal.RequireFromString("200")

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"bank", Filter{Bank: "BMO"}, []string{"t1", "t3", "t5"}},
		{"bank and account", Filter{Bank: "BMO", Account: "Savings"}, []string{"t5"}},
		{"type", Filter{Type: "Interac"}, []string{"t2", "t5"}},
		{"outgoing", Filter{Direction: domain.Outgoing}, []string{"t1", "t3", "t4"}},
		{"incoming", Filter{Direction: domain.Incoming}, []string{"t2", "t5"}},
		{"amount range", Filter{AmountMin: &min, AmountMax: &max}, []string{"t1", "t2", "t4"}},
		{"keyword matches derived direction", Filter{Keyword: "incoming", Bank: "RBC"}, []string{"t2"}},
		{"no match", Filter{Bank: "TD"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(fixture(), tt.filter))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	q := url.Values{}
	q.Set("date_start", "2024-01-02")
	q.Set("date_end", "2024-01-04")
	q.Set("direction", "outgoing")
	q.Set("amount_min", "-100")
	q.Set("keyword", " Costco ")

	f, err := ParseFilter(q)
	if err != nil {
		t.Fatalf("ParseFilter() error = %v", err)
	}
	if f.DateStart != "2024-01-02" || f.DateEnd != "2024-01-04" {
		t.Errorf("unexpected dates: %+v", f)
	}
	if f.Direction != domain.Outgoing {
		t.Errorf("Direction = %q, want Outgoing", f.Direction)
	}
	if f.AmountMin == nil || !f.AmountMin.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("AmountMin = %v, want -100", f.AmountMin)
	}
	if f.Keyword != "Costco" {
		t.Errorf("Keyword = %q, want Costco", f.Keyword)
	}

	got := ids(Apply(fixture(), f))
	if !reflect.DeepEqual(got, []string{"t3"}) {
		t.Errorf("Apply(parsed) = %v, want [t3]", got)
	}
}

func TestParseFilter_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad date", "date_start", "01/02/2024"},
		{"bad direction", "direction", "up"},
		{"bad amount", "amount_max", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			q.Set(tt.key, tt.value)
			_, err := ParseFilter(q)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("ParseFilter(%s=%s) error = %v, want validation error", tt.key, tt.value, err)
			}
		})
	}
}

func TestParseFilter_InvertedRange(t *testing.T) {
	q := url.Values{}
	q.Set("amount_min", "10")
	q.Set("amount_max", "5")
	if _, err := ParseFilter(q); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for inverted amount range, got %v", err)
	}
}
