package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/shopspring/decimal"
)

type mockUploader struct {
	objects map[string]string
	types   map[string]string
	err     error
}

func (m *mockUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string]string{}
		m.types = map[string]string{}
	}
	m.objects[bucket+"/"+object] = string(data)
	m.types[bucket+"/"+object] = contentType
	return nil
}

type fixedLedger []domain.Transaction

func (f fixedLedger) ReadAll(ctx context.Context) ([]domain.Transaction, error) { return f, nil }

type fixedAccounts []domain.AccountEntry

func (f fixedAccounts) List(ctx context.Context) ([]domain.AccountEntry, error) { return f, nil }

func sampleLedger() fixedLedger {
	balance := decimal.RequireFromString("900")
	return fixedLedger{
		{
			ID: "tx-1", Date: civil.Date{Year: 2024, Month: 1, Day: 5}, Time: "10:00",
			Type: "Interac", Bank: "BankA", Account: "Chequing",
			Amount: decimal.RequireFromString("-100"), Purpose: "rent, share", BalanceLeft: &balance,
		},
		{
			ID: "tx-2", Date: civil.Date{Year: 2024, Month: 1, Day: 6},
			Type: "Cash", Bank: "Cash", Account: "Wallet",
			Amount: decimal.RequireFromString("20"), Purpose: "found",
		},
	}
}

func TestWriteLedgerCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLedgerCSV(&buf, sampleLedger()); err != nil {
		t.Fatalf("WriteLedgerCSV() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(domain.TransactionColumns, ",") {
		t.Errorf("header = %v", rows[0])
	}

	want := []string{"tx-1", "2024-01-05", "10:00", "Interac", "BankA", "Chequing", "Outgoing", "-100", "rent, share", "900", "", ""}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("row 1 col %s = %q, want %q", domain.TransactionColumns[i], rows[1][i], v)
		}
	}
	if rows[2][6] != "Incoming" || rows[2][9] != "" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestWriteRegistryCSV(t *testing.T) {
	var buf bytes.Buffer
	entries := []domain.AccountEntry{{Bank: "BankA", Account: "Chequing", Type: "Checking", Balance: decimal.RequireFromString("12.50")}}
	if err := WriteRegistryCSV(&buf, entries); err != nil {
		t.Fatal(err)
	}
	want := "Bank,Account,Type,Balance\nBankA,Chequing,Checking,12.5\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestSnapshotter_Take(t *testing.T) {
	up := &mockUploader{}
	s := &Snapshotter{
		Ledger:   sampleLedger(),
		Accounts: fixedAccounts{{Bank: "BankA", Account: "Chequing", Balance: decimal.NewFromInt(900)}},
		Uploader: up,
		Bucket:   "backups",
		Now:      func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) },
	}

	m, err := s.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if m.LedgerURI != "gs://backups/snapshots/20240315T093000Z/ledger.csv" {
		t.Errorf("LedgerURI = %s", m.LedgerURI)
	}
	if m.RegistryURI != "gs://backups/snapshots/20240315T093000Z/registry.csv" {
		t.Errorf("RegistryURI = %s", m.RegistryURI)
	}
	if m.Records != 2 || m.Accounts != 1 {
		t.Errorf("manifest counts %+v", m)
	}
	ledgerCSV := up.objects["backups/snapshots/20240315T093000Z/ledger.csv"]
	if !strings.HasPrefix(ledgerCSV, "ID,Date,") || !strings.Contains(ledgerCSV, "tx-2") {
		t.Errorf("ledger object = %q", ledgerCSV)
	}
	if up.types["backups/snapshots/20240315T093000Z/ledger.csv"] != "text/csv" {
		t.Error("expected text/csv content type")
	}
}

func TestSnapshotter_Errors(t *testing.T) {
	s := &Snapshotter{Ledger: sampleLedger(), Accounts: fixedAccounts{}, Uploader: &mockUploader{}}
	if _, err := s.Take(context.Background()); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing bucket error = %v, want validation", err)
	}

	s.Bucket = "b"
	s.Uploader = &mockUploader{err: errors.New("denied")}
	if _, err := s.Take(context.Background()); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Errorf("upload error = %v", err)
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://bucket/path/to/file.csv", "bucket", "path/to/file.csv", false},
		{"gs://bucket/prefix", "bucket", "prefix", false},
		{"gs://bucket", "", "", true},
		{"s3://bucket/x", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			b, o, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if b != tt.bucket || o != tt.object {
				t.Errorf("ParseURI() = %q, %q", b, o)
			}
		})
	}
}
