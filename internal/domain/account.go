package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AccountKey identifies a registry entry.
type AccountKey struct {
	Bank    string `json:"bank"`
	Account string `json:"account"`
}

func (k AccountKey) String() string {
	return k.Bank + "/" + k.Account
}

// AccountEntry is one row of the account registry.
type AccountEntry struct {
	Bank    string          `json:"bank"`
	Account string          `json:"account"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// Key returns the (bank, account) identity of the entry.
func (e AccountEntry) Key() AccountKey {
	return AccountKey{Bank: e.Bank, Account: e.Account}
}

// BankSummary groups the accounts of one bank with their total.
type BankSummary struct {
	Bank     string          `json:"bank"`
	Accounts []AccountEntry  `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

// RegistrySummary is the registry grouped per bank plus a grand total.
type RegistrySummary struct {
	Banks      []BankSummary   `json:"banks"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// Summarize groups entries by bank in first-seen order and computes
// per-bank and grand totals.
func Summarize(entries []AccountEntry) RegistrySummary {
	index := make(map[string]int)
	var summary RegistrySummary
	summary.GrandTotal = decimal.Zero

	for _, e := range entries {
		i, ok := index[e.Bank]
		if !ok {
			i = len(summary.Banks)
			index[e.Bank] = i
			summary.Banks = append(summary.Banks, BankSummary{Bank: e.Bank, Total: decimal.Zero})
		}
		summary.Banks[i].Accounts = append(summary.Banks[i].Accounts, e)
		summary.Banks[i].Total = summary.Banks[i].Total.Add(e.Balance)
		summary.GrandTotal = summary.GrandTotal.Add(e.Balance)
	}

	return summary
}

// SortedKeys returns the keys of m ordered by bank, then account.
func SortedKeys(m map[AccountKey]decimal.Decimal) []AccountKey {
	keys := make([]AccountKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Bank != keys[j].Bank {
			return keys[i].Bank < keys[j].Bank
		}
		return keys[i].Account < keys[j].Account
	})
	return keys
}
