// Package audit keeps a SQLite log of every ledger mutation, including the
// ones that left the ledger and registry inconsistent.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"
)

// Schema defines the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TEXT NOT NULL,         -- RFC3339 UTC
    operation TEXT NOT NULL,           -- add, edit, delete, refund, setup, recompute
    record_id TEXT,
    bank TEXT,
    account TEXT,
    delta TEXT NOT NULL,               -- signed decimal
    outcome TEXT NOT NULL,             -- ok, failed, inconsistent
    detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_log_outcome
    ON audit_log(outcome);

CREATE INDEX IF NOT EXISTS idx_audit_log_record
    ON audit_log(record_id);
`

// Store persists audit entries.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens the audit database, creating it and its schema if needed.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record implements ledger.Auditor.
func (s *Store) Record(ctx context.Context, e domain.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	query := `
		INSERT INTO audit_log (recorded_at, operation, record_id, bank, account, delta, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Operation,
		e.RecordID,
		e.Bank,
		e.Account,
		e.Delta.String(),
		e.Outcome,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Query selects audit entries. Zero values mean no restriction.
type Query struct {
	Outcome  string
	RecordID string
	Limit    int
}

// List returns matching entries, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, recorded_at, operation, record_id, bank, account, delta, outcome, detail
		FROM audit_log
		WHERE (? = '' OR outcome = ?) AND (? = '' OR record_id = ?)
		ORDER BY id DESC
	`
	args := []interface{}{q.Outcome, q.Outcome, q.RecordID, q.RecordID}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e                       domain.AuditEntry
			recordedAt, delta       string
			recordID, bank, account sql.NullString
			detail                  sql.NullString
		)
		if err := rows.Scan(&e.ID, &recordedAt, &e.Operation, &recordID, &bank, &account, &delta, &e.Outcome, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %q: %w", recordedAt, err)
		}
		if e.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("failed to parse audit delta %q: %w", delta, err)
		}
		e.RecordID = recordID.String
		e.Bank = bank.String
		e.Account = account.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log: %w", err)
	}
	return entries, nil
}

// Ensure Store implements ledger.Auditor
var _ ledger.Auditor = (*Store)(nil)
