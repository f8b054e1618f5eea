package notionsync

import (
	"context"

	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService defines the interface for interacting with Notion API.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage updates an existing Notion page with the given properties.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage archives a page so it no longer shows in the database.
	ArchivePage(ctx context.Context, pageID string) error
}

// LedgerSource is the read side of the ledger the mirror exports.
type LedgerSource interface {
	ReadAll(ctx context.Context) ([]domain.Transaction, error)
}

// AccountSource lists registry entries.
type AccountSource interface {
	List(ctx context.Context) ([]domain.AccountEntry, error)
}
