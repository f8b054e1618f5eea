package ledger

import (
	"strings"

	"github.com/dvloznov/finance-manager/internal/domain"
)

// InteracAcrossAccounts is the interac_type value that requests a second,
// mirrored leg on a target account.
const InteracAcrossAccounts = "Across Accounts"

// Refund types.
const (
	RefundFull    = "full"
	RefundPartial = "partial"
)

// TransactionInput carries the raw fields of an add or edit request.
type TransactionInput struct {
	Date      string
	Time      string
	Type      string
	Bank      string
	Account   string
	Direction string
	Amount    string // unsigned; the sign comes from Direction
	Purpose   string
}

// AddInput is an add request, optionally describing an Interac transfer.
type AddInput struct {
	TransactionInput
	InteracType   string
	TargetBank    string
	TargetAccount string
}

// EditInput replaces every editable field of the record with the given id.
type EditInput struct {
	ID string
	TransactionInput
}

// RefundInput refunds all or part of an outgoing record.
type RefundInput struct {
	ID         string
	Amount     string
	RefundType string
}

// SetupInput lists the accounts submitted by the setup form. Balance is the
// opening balance for accounts that do not exist yet.
type SetupInput struct {
	Accounts []domain.AccountEntry
	Reset    bool
}

// parse validates the input and returns a record without an id.
func (in TransactionInput) parse() (domain.Transaction, error) {
	date, err := domain.ParseDate("date", in.Date)
	if err != nil {
		return domain.Transaction{}, err
	}
	clock, err := domain.ParseClock("time", in.Time)
	if err != nil {
		return domain.Transaction{}, err
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		return domain.Transaction{}, domain.NewValidationError("type", "is required")
	}
	bank := strings.TrimSpace(in.Bank)
	if bank == "" {
		return domain.Transaction{}, domain.NewValidationError("bank", "is required")
	}
	account := strings.TrimSpace(in.Account)
	if account == "" && !domain.IsCashBank(bank) {
		return domain.Transaction{}, domain.NewValidationError("account", "is required")
	}
	direction, err := domain.ParseDirection(in.Direction)
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := domain.ParsePositiveAmount("amount", in.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}

	return domain.Transaction{
		Date:    date,
		Time:    clock,
		Type:    typ,
		Bank:    bank,
		Account: account,
		Amount:  domain.Sign(direction, amount),
		Purpose: strings.TrimSpace(in.Purpose),
	}, nil
}

// transfer reports whether the request asks for a second leg and returns
// the target key.
func (in AddInput) transfer() (domain.AccountKey, bool, error) {
	if !strings.EqualFold(strings.TrimSpace(in.Type), domain.TypeInterac) ||
		!strings.EqualFold(strings.TrimSpace(in.InteracType), InteracAcrossAccounts) {
		return domain.AccountKey{}, false, nil
	}

	target := domain.AccountKey{
		Bank:    strings.TrimSpace(in.TargetBank),
		Account: strings.TrimSpace(in.TargetAccount),
	}
	if target.Bank == "" {
		return target, true, domain.NewValidationError("target_bank", "is required for transfers across accounts")
	}
	if target.Account == "" && !domain.IsCashBank(target.Bank) {
		return target, true, domain.NewValidationError("target_account", "is required for transfers across accounts")
	}
	if target.Bank == strings.TrimSpace(in.Bank) && target.Account == strings.TrimSpace(in.Account) {
		return target, true, domain.NewValidationError("target_account", "must differ from the source account")
	}
	return target, true, nil
}

func validateSetup(in SetupInput) error {
	if len(in.Accounts) == 0 {
		return domain.NewValidationError("bank", "at least one account is required")
	}
	seen := make(map[domain.AccountKey]bool, len(in.Accounts))
	for _, e := range in.Accounts {
		if strings.TrimSpace(e.Bank) == "" {
			return domain.NewValidationError("bank", "bank name is required")
		}
		if strings.TrimSpace(e.Account) == "" {
			return domain.NewValidationError("account_name", "account name is required for bank "+e.Bank)
		}
		if domain.IsCashBank(e.Bank) {
			return domain.NewValidationError("bank", "Cash is not a tracked bank")
		}
		if seen[e.Key()] {
			return domain.NewValidationError("account_name", "duplicate account "+e.Key().String())
		}
		seen[e.Key()] = true
	}
	return nil
}
