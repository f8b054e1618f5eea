package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of records to process in a single batch
	BatchSize = 100
)

// Result counts what a sync did (or would do, in dry-run mode).
type Result struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// mirrorItem is one source row keyed by its durable identity.
type mirrorItem struct {
	key      string
	checksum string
	props    notionapi.Properties
}

// SyncTransactions mirrors the ledger into a Notion database. Pages are
// matched by their Record ID property: unchanged pages are skipped, changed
// ones updated, missing ones created, and pages whose record no longer
// exists in the ledger are archived. Failures on single pages are logged
// and counted; the sync carries on.
func SyncTransactions(ctx context.Context, ledger LedgerSource, notionClient NotionService, notionDBID string, dryRun bool) (*Result, error) {
	records, err := ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: reading ledger: %w", err)
	}

	items := make([]mirrorItem, 0, len(records))
	for _, tx := range records {
		items = append(items, mirrorItem{
			key:      tx.ID,
			checksum: Checksum(tx),
			props:    TransactionToNotionProperties(tx),
		})
	}

	res, err := mirror(ctx, notionClient, notionDBID, PropRecordID, items, dryRun)
	if err != nil {
		return nil, fmt.Errorf("SyncTransactions: %w", err)
	}
	return res, nil
}

// SyncAccounts mirrors the account registry into a Notion database keyed
// by the "<bank>/<account>" title.
func SyncAccounts(ctx context.Context, accounts AccountSource, notionClient NotionService, notionDBID string, dryRun bool) (*Result, error) {
	entries, err := accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("SyncAccounts: listing registry: %w", err)
	}

	items := make([]mirrorItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, mirrorItem{
			key:      e.Key().String(),
			checksum: accountChecksum(e),
			props:    AccountToNotionProperties(e),
		})
	}

	res, err := mirror(ctx, notionClient, notionDBID, PropAccountKey, items, dryRun)
	if err != nil {
		return nil, fmt.Errorf("SyncAccounts: %w", err)
	}
	return res, nil
}

func mirror(ctx context.Context, notionClient NotionService, dbID, keyProp string, items []mirrorItem, dryRun bool) (*Result, error) {
	log := logger.FromContext(ctx).With().
		Str("notion_db_id", dbID).
		Bool("dry_run", dryRun).
		Logger()

	log.Info().Int("source_count", len(items)).Msg("Starting Notion sync")

	pages, err := queryAllNotionPages(ctx, notionClient, dbID)
	if err != nil {
		return nil, err
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	wanted := make(map[string]bool, len(items))
	for _, it := range items {
		wanted[it.key] = true
	}

	existing := make(map[string]notionapi.Page, len(pages))
	res := &Result{}

	for _, page := range pages {
		key := pageText(page, keyProp)
		_, dup := existing[key]
		if key != "" && wanted[key] && !dup {
			existing[key] = page
			continue
		}

		// Stale, unkeyed, or a duplicate of an already matched page.
		if dryRun {
			log.Info().Str("key", key).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive Notion page")
			res.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("key", key).Str("page_id", string(page.ID)).Msg("Failed to archive Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for i := 0; i < len(items); i += BatchSize {
		end := i + BatchSize
		if end > len(items) {
			end = len(items)
		}
		log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Processing batch")

		for _, it := range items[i:end] {
			page, found := existing[it.key]
			switch {
			case found && pageText(page, PropChecksum) == it.checksum:
				res.Skipped++

			case found:
				if dryRun {
					log.Info().Str("key", it.key).Msg("[DRY RUN] Would update Notion page")
					res.Updated++
					continue
				}
				if _, err := notionClient.UpdatePage(ctx, string(page.ID), it.props); err != nil {
					log.Warn().Err(err).Str("key", it.key).Str("page_id", string(page.ID)).Msg("Failed to update Notion page")
					res.Failed++
					continue
				}
				res.Updated++

			default:
				if dryRun {
					log.Info().Str("key", it.key).Msg("[DRY RUN] Would create Notion page")
					res.Created++
					continue
				}
				if _, err := notionClient.CreatePage(ctx, dbID, it.props); err != nil {
					log.Warn().Err(err).Str("key", it.key).Msg("Failed to create Notion page")
					res.Failed++
					continue
				}
				res.Created++
			}
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Notion sync completed")

	return res, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
