package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Audit outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeFailed       = "failed"
	OutcomeInconsistent = "inconsistent"
)

// AuditEntry records one mutation applied to the ledger and registry.
type AuditEntry struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Operation string          `json:"operation"`
	RecordID  string          `json:"record_id,omitempty"`
	Bank      string          `json:"bank,omitempty"`
	Account   string          `json:"account,omitempty"`
	Delta     decimal.Decimal `json:"delta"`
	Outcome   string          `json:"outcome"`
	Detail    string          `json:"detail,omitempty"`
}
