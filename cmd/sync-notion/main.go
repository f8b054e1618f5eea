package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finance-manager/internal/app"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/dvloznov/finance-manager/internal/notionsync"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
	notionToken := flag.String("notion-token", "", "Notion API token (or set NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", "", "Notion transactions database ID (or set NOTION_DB_ID)")
	accountsDBID := flag.String("accounts-db-id", "", "Notion accounts database ID (or set NOTION_ACCOUNTS_DB_ID); accounts are skipped when empty")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(cfg.LogLevel, cfg.LogFormat)

	if *notionToken != "" {
		cfg.Notion.Token = *notionToken
	}
	if *notionDBID != "" {
		cfg.Notion.DBID = *notionDBID
	}
	if *accountsDBID != "" {
		cfg.Notion.AccountsDBID = *accountsDBID
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.Require("NOTION_TOKEN", "NOTION_DB_ID"); err != nil {
		log.Fatal().Err(err).Msg("Error: --notion-token and --notion-db-id are required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("backend", cfg.Backend).
		Bool("accounts", cfg.Notion.AccountsDBID != "").
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger backend")
	}
	defer backend.Close()

	notionClient := notionsync.NewNotionClient(cfg.Notion.Token)

	res, err := notionsync.SyncTransactions(ctx, backend.Store, notionClient, cfg.Notion.DBID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Transaction sync failed")
	}
	printResult("Transactions", res)

	if cfg.Notion.AccountsDBID != "" {
		res, err := notionsync.SyncAccounts(ctx, backend.Registry, notionClient, cfg.Notion.AccountsDBID, *dryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("Account sync failed")
		}
		printResult("Accounts", res)
	}

	fmt.Println("Sync completed successfully.")
}

func printResult(label string, res *notionsync.Result) {
	fmt.Printf("%s: %d created, %d updated, %d unchanged, %d archived, %d failed\n",
		label, res.Created, res.Updated, res.Skipped, res.Archived, res.Failed)
}
