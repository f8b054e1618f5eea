package app

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/shopspring/decimal"
)

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"memory", config.Config{Backend: config.BackendMemory}, false},
		{"bolt in nested dir", config.Config{Backend: config.BackendBolt, BoltPath: filepath.Join(dir, "nested", "ledger.db")}, false},
		{"sheets without spreadsheet", config.Config{Backend: config.BackendSheets}, true},
		{"unknown", config.Config{Backend: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := OpenBackend(context.Background(), &tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if b.Store == nil || b.Registry == nil {
				t.Error("backend is missing a store or registry")
			}
			if err := b.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestNewService_BoltWithAudit(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Backend:     config.BackendBolt,
		BoltPath:    filepath.Join(dir, "ledger.db"),
		AuditDBPath: filepath.Join(dir, "audit", "audit.db"),
	}
	ctx := context.Background()

	svc, auditStore, backend, err := NewService(ctx, cfg, logger.NewWithWriter(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if auditStore == nil {
		t.Fatal("expected an audit store")
	}

	_, err = svc.Setup(ctx, ledger.SetupInput{Accounts: []domain.AccountEntry{
		{Bank: "BankA", Account: "Chequing", Type: "Checking", Balance: decimal.NewFromInt(10)},
	}})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	entries, err := auditStore.List(ctx, audit.Query{})
	if err != nil || len(entries) == 0 {
		t.Fatalf("audit entries = %v, err = %v", entries, err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// The registry survives a reopen.
	svc, auditStore, backend, err = NewService(ctx, cfg, logger.NewWithWriter(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer backend.Close()
	summary, err := svc.Balances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.GrandTotal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("grand total = %s, want 10", summary.GrandTotal)
	}
	if auditStore == nil {
		t.Error("expected an audit store after reopen")
	}
}

func TestNewService_NoAudit(t *testing.T) {
	svc, auditStore, backend, err := NewService(context.Background(),
		&config.Config{Backend: config.BackendMemory}, logger.NewWithWriter(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	if auditStore != nil || svc == nil {
		t.Errorf("audit = %v, svc = %v", auditStore, svc)
	}

	_, err = svc.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want not found", err)
	}
}
