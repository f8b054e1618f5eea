package notionsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// mockNotion is an in-memory NotionService that pages query results two at a time.
type mockNotion struct {
	pages     []notionapi.Page
	nextID    int
	created   int
	updated   int
	archived  []string
	failWrite bool
}

func (m *mockNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.failWrite {
		return nil, errors.New("rate limited")
	}
	m.nextID++
	page := notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("page-%d", m.nextID)), Properties: properties}
	m.pages = append(m.pages, page)
	m.created++
	return &page, nil
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.failWrite {
		return nil, errors.New("rate limited")
	}
	for i := range m.pages {
		if string(m.pages[i].ID) == pageID {
			m.pages[i].Properties = properties
			m.updated++
			return &m.pages[i], nil
		}
	}
	return nil, errors.New("page not found")
}

func (m *mockNotion) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	start := 0
	if filter.StartCursor != "" {
		start, _ = strconv.Atoi(string(filter.StartCursor))
	}
	end := start + 2
	if end > len(m.pages) {
		end = len(m.pages)
	}
	resp := &notionapi.DatabaseQueryResponse{Results: append([]notionapi.Page(nil), m.pages[start:end]...)}
	if end < len(m.pages) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(strconv.Itoa(end))
	}
	return resp, nil
}

func (m *mockNotion) ArchivePage(ctx context.Context, pageID string) error {
	if m.failWrite {
		return errors.New("rate limited")
	}
	for i := range m.pages {
		if string(m.pages[i].ID) == pageID {
			m.pages = append(m.pages[:i], m.pages[i+1:]...)
			m.archived = append(m.archived, pageID)
			return nil
		}
	}
	return errors.New("page not found")
}

type staticLedger []domain.Transaction

func (s staticLedger) ReadAll(ctx context.Context) ([]domain.Transaction, error) {
	return s, nil
}

type staticAccounts []domain.AccountEntry

func (s staticAccounts) List(ctx context.Context) ([]domain.AccountEntry, error) {
	return s, nil
}

func record(id, purpose, amount string) domain.Transaction {
	return domain.Transaction{
		ID:      id,
		Date:    civil.Date{Year: 2024, Month: 3, Day: 1},
		Type:    "Groceries",
		Bank:    "BankA",
		Account: "Chequing",
		Amount:  decimal.RequireFromString(amount),
		Purpose: purpose,
	}
}

func TestSyncTransactions_CreateSkipUpdateArchive(t *testing.T) {
	ctx := context.Background()
	notion := &mockNotion{}
	ledger := staticLedger{
		record("a", "milk", "-4.50"),
		record("b", "bread", "-3.00"),
		record("c", "salary", "2000"),
	}

	res, err := SyncTransactions(ctx, ledger, notion, "db", false)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if res.Created != 3 || len(notion.pages) != 3 {
		t.Fatalf("first sync result %+v, pages %d", res, len(notion.pages))
	}

	// Second run over the same ledger is a no-op.
	res, err = SyncTransactions(ctx, ledger, notion, "db", false)
	if err != nil {
		t.Fatal(err)
	}
	if *res != (Result{Skipped: 3}) {
		t.Errorf("second sync result %+v, want all skipped", res)
	}

	// Edit one record, delete another.
	edited := record("a", "milk and eggs", "-9.00")
	res, err = SyncTransactions(ctx, staticLedger{edited, ledger[2]}, notion, "db", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Archived != 1 || res.Skipped != 1 || res.Created != 0 {
		t.Errorf("third sync result %+v", res)
	}
	if len(notion.pages) != 2 {
		t.Errorf("pages after archive = %d, want 2", len(notion.pages))
	}
	for _, p := range notion.pages {
		if pageText(p, PropRecordID) == "a" && pageText(p, PropPurpose) != "milk and eggs" {
			t.Errorf("page a not updated: %q", pageText(p, PropPurpose))
		}
	}
}

func TestSyncTransactions_DryRunWritesNothing(t *testing.T) {
	notion := &mockNotion{}
	notion.pages = []notionapi.Page{{ID: "orphan", Properties: notionapi.Properties{}}}

	res, err := SyncTransactions(context.Background(), staticLedger{record("a", "milk", "-4.50")}, notion, "db", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || res.Archived != 1 {
		t.Errorf("dry run result %+v", res)
	}
	if notion.created != 0 || len(notion.archived) != 0 || len(notion.pages) != 1 {
		t.Error("dry run must not write to Notion")
	}
}

func TestSyncTransactions_WriteFailuresCounted(t *testing.T) {
	notion := &mockNotion{failWrite: true}
	res, err := SyncTransactions(context.Background(), staticLedger{record("a", "milk", "-4.50"), record("b", "tea", "-2")}, notion, "db", false)
	if err != nil {
		t.Fatalf("per-page failures must not abort the sync: %v", err)
	}
	if res.Failed != 2 || res.Created != 0 {
		t.Errorf("result %+v, want 2 failed", res)
	}
}

func TestSyncAccounts(t *testing.T) {
	notion := &mockNotion{}
	accounts := staticAccounts{
		{Bank: "BankA", Account: "Chequing", Type: "Checking", Balance: decimal.NewFromInt(100)},
		{Bank: "BankB", Account: "Savings", Type: "Savings", Balance: decimal.NewFromInt(50)},
	}

	if _, err := SyncAccounts(context.Background(), accounts, notion, "accounts-db", false); err != nil {
		t.Fatal(err)
	}
	accounts[0].Balance = decimal.NewFromInt(80)
	res, err := SyncAccounts(context.Background(), accounts, notion, "accounts-db", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Skipped != 1 {
		t.Errorf("result %+v", res)
	}
}

func TestTransactionToNotionProperties(t *testing.T) {
	balance := decimal.RequireFromString("95.50")
	tx := record("id-1", "", "-4.50")
	tx.Time = "08:15"
	tx.BalanceLeft = &balance
	tx.RefundStatus = "Refunded"

	props := TransactionToNotionProperties(tx)

	page := notionapi.Page{Properties: props}
	if got := pageText(page, PropPurpose); got != "Groceries" {
		t.Errorf("title = %q, want type as fallback", got)
	}
	if got := props[PropDirection].(notionapi.SelectProperty).Select.Name; got != "Outgoing" {
		t.Errorf("direction = %q", got)
	}
	if got := props[PropAmount].(notionapi.NumberProperty).Number; got != -4.5 {
		t.Errorf("amount = %v", got)
	}
	if got := props[PropBalanceLeft].(notionapi.NumberProperty).Number; got != 95.5 {
		t.Errorf("balance left = %v", got)
	}
	if _, ok := props[PropLinkedID]; ok {
		t.Error("empty linked id should be omitted")
	}
	if Checksum(tx) == Checksum(record("id-1", "", "-4.50")) {
		t.Error("checksum should change with the record")
	}
}
