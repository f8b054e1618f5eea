// Package app assembles the ledger service from configuration. The API
// server and the command-line tools share it.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/infra/boltstore"
	"github.com/dvloznov/finance-manager/internal/infra/memory"
	"github.com/dvloznov/finance-manager/internal/infra/sheets"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/rs/zerolog"
)

// Backend is an opened ledger store and account registry pair.
type Backend struct {
	Store    ledger.Store
	Registry ledger.Registry
	closers  []func() error
}

// Close releases the backend's resources.
func (b *Backend) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.closers = nil
	return firstErr
}

// OpenBackend opens the storage backend named by cfg.Backend.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		client, err := sheets.NewClient(ctx, sheets.Config{
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			CredentialsJSON: cfg.Sheets.CredentialsJSON,
			CredentialsFile: cfg.Sheets.CredentialsFile,
			Endpoint:        cfg.Sheets.Endpoint,
			MaxRetries:      cfg.Sheets.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return &Backend{
			Store:    sheets.NewLedgerStore(client, cfg.Sheets.LedgerSheet),
			Registry: sheets.NewRegistry(client, cfg.Sheets.RegistrySheet),
		}, nil

	case config.BackendBolt:
		if err := ensureDir(cfg.BoltPath); err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return &Backend{
			Store:    db.Ledger(),
			Registry: db.Registry(),
			closers:  []func() error{db.Close},
		}, nil

	case config.BackendMemory:
		return &Backend{Store: memory.NewStore(), Registry: memory.NewRegistry()}, nil

	default:
		return nil, fmt.Errorf("OpenBackend: unknown backend %q", cfg.Backend)
	}
}

// NewService opens the backend and, when AuditDBPath is set, the audit
// trail, and returns a ledger service over them. The audit store is nil
// when disabled. Close the returned backend to release both.
func NewService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ledger.Service, *audit.Store, *Backend, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	var opts []ledger.Option
	var auditStore *audit.Store
	if cfg.AuditDBPath != "" {
		auditStore, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			backend.Close()
			return nil, nil, nil, fmt.Errorf("NewService: %w", err)
		}
		backend.closers = append(backend.closers, auditStore.Close)
		opts = append(opts, ledger.WithAuditor(auditStore))
	}

	log.Info().
		Str("backend", cfg.Backend).
		Bool("audit", auditStore != nil).
		Msg("Ledger service initialized")

	return ledger.NewService(backend.Store, backend.Registry, opts...), auditStore, backend, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
