package boltstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/shopspring/decimal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLedger_RoundTripAndOrder(t *testing.T) {
	db := openTestDB(t)
	store := db.Ledger()
	ctx := context.Background()

	bal := decimal.RequireFromString("88.12")
	want := domain.Transaction{
		ID:          "tx-1",
		Date:        civil.Date{Year: 2024, Month: 2, Day: 29},
		Time:        "23:59",
		Type:        "Debit",
		Bank:        "BMO",
		Account:     "Chequing",
		Amount:      decimal.RequireFromString("-11.88"),
		Purpose:     "lunch",
		BalanceLeft: &bal,
	}
	if _, err := store.Append(ctx, want); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	id2, err := store.Append(ctx, domain.Transaction{Bank: "Cash", Amount: decimal.NewFromInt(-3)})
	if err != nil {
		t.Fatal(err)
	}
	if id2 == "" {
		t.Error("expected generated id")
	}
	if _, err := store.Append(ctx, want); err == nil {
		t.Error("expected duplicate id to be rejected")
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 2 || records[0].ID != "tx-1" || records[1].ID != id2 {
		t.Fatalf("unexpected order: %+v", records)
	}
	got := records[0]
	if got.Date != want.Date || !got.Amount.Equal(want.Amount) || !got.BalanceLeft.Equal(bal) || got.Position != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLedger_MutationsByID(t *testing.T) {
	db := openTestDB(t)
	store := db.Ledger()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Append(ctx, domain.Transaction{ID: id, Bank: "TD", Amount: decimal.NewFromInt(-1)}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	c, err := store.ReadOne(ctx, "c")
	if err != nil {
		t.Fatalf("ReadOne() error = %v", err)
	}
	if c.Position != 2 {
		t.Errorf("position = %d, want 2", c.Position)
	}

	c.Amount = decimal.NewFromInt(5)
	if err := store.Replace(ctx, c); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := store.UpdateField(ctx, "c", ledger.FieldRefundStatus, "Refunded"); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}
	c, _ = store.ReadOne(ctx, "c")
	if !c.Amount.Equal(decimal.NewFromInt(5)) || c.RefundStatus != "Refunded" {
		t.Errorf("unexpected record %+v", c)
	}

	for name, err := range map[string]error{
		"ReadOne": func() error { _, err := store.ReadOne(ctx, "b"); return err }(),
		"Remove":  store.Remove(ctx, "b"),
		"Replace": store.Replace(ctx, domain.Transaction{ID: "b"}),
		"Update":  store.UpdateField(ctx, "b", ledger.FieldPurpose, "x"),
	} {
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("%s(removed) error = %v, want not found", name, err)
		}
	}
}

func TestRegistry(t *testing.T) {
	db := openTestDB(t)
	reg := db.Registry()
	ctx := context.Background()

	if err := reg.ReplaceAll(ctx, []domain.AccountEntry{
		{Bank: "RBC", Account: "Visa", Type: "Credit Card", Balance: decimal.NewFromInt(-300)},
		{Bank: "BMO", Account: "Chequing", Type: "Checking", Balance: decimal.NewFromInt(50)},
	}); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	if err := reg.ReplaceAll(ctx, []domain.AccountEntry{
		{Bank: "BMO", Account: "Chequing", Type: "Checking", Balance: decimal.NewFromInt(50)},
		{Bank: "BMO", Account: "Savings", Type: "Savings", Balance: decimal.Zero},
	}); err != nil {
		t.Fatalf("second ReplaceAll() error = %v", err)
	}

	entries, _ := reg.List(ctx)
	if len(entries) != 2 || entries[0].Account != "Chequing" || entries[1].Account != "Savings" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if _, err := reg.FindByKey(ctx, "RBC", "Visa"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("replaced account still found: %v", err)
	}

	e, err := reg.AdjustBalance(ctx, "BMO", "Savings", decimal.RequireFromString("12.34"))
	if err != nil {
		t.Fatalf("AdjustBalance() error = %v", err)
	}
	if !e.Balance.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("balance = %s", e.Balance)
	}
	found, _ := reg.FindByKey(ctx, "BMO", "Savings")
	if !found.Balance.Equal(e.Balance) {
		t.Errorf("persisted balance = %s, want %s", found.Balance, e.Balance)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.Ledger().Append(ctx, domain.Transaction{ID: "persisted", Bank: "TD"})
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Ledger().ReadOne(ctx, "persisted"); err != nil {
		t.Errorf("ReadOne() after reopen error = %v", err)
	}
}

func TestServiceOverBolt_Invariant(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	reg := db.Registry()
	reg.ReplaceAll(ctx, []domain.AccountEntry{{Bank: "BMO", Account: "Chequing", Balance: decimal.Zero}})
	svc := ledger.NewService(db.Ledger(), reg)

	in := ledger.AddInput{TransactionInput: ledger.TransactionInput{
		Date: "2024-05-01", Type: "Debit", Bank: "BMO", Account: "Chequing", Direction: "Outgoing", Amount: "20",
	}}
	res, err := svc.Add(ctx, in)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := svc.Refund(ctx, ledger.RefundInput{ID: res.Records[0].ID, RefundType: ledger.RefundFull}); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}

	report, err := svc.RecomputeBalances(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Consistent || report.Records != 2 {
		t.Errorf("report = %+v, want consistent with 2 records", report)
	}
}
