package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AccountsFile is the YAML layout of an account seed file:
//
//	banks:
//	  - name: BankA
//	    accounts:
//	      - name: Chequing
//	        type: Checking
//	        balance: 1200.50
type AccountsFile struct {
	Banks []struct {
		Name     string `yaml:"name"`
		Accounts []struct {
			Name    string `yaml:"name"`
			Type    string `yaml:"type"`
			Balance string `yaml:"balance"`
		} `yaml:"accounts"`
	} `yaml:"banks"`
}

// LoadAccounts reads a seed file into registry entries in file order.
func LoadAccounts(path string) ([]domain.AccountEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	return ParseAccounts(data)
}

// ParseAccounts decodes seed YAML. A missing balance means zero.
func ParseAccounts(data []byte) ([]domain.AccountEntry, error) {
	var file AccountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var entries []domain.AccountEntry
	for _, bank := range file.Banks {
		for _, acc := range bank.Accounts {
			balance := decimal.Zero
			if s := strings.TrimSpace(acc.Balance); s != "" {
				b, err := decimal.NewFromString(s)
				if err != nil {
					return nil, domain.NewValidationError("balance",
						fmt.Sprintf("invalid balance %q for %s/%s", acc.Balance, bank.Name, acc.Name))
				}
				balance = b
			}
			entries = append(entries, domain.AccountEntry{
				Bank:    strings.TrimSpace(bank.Name),
				Account: strings.TrimSpace(acc.Name),
				Type:    strings.TrimSpace(acc.Type),
				Balance: balance,
			})
		}
	}
	return entries, nil
}
