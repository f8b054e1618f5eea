// Package cmd provides the ledger command-line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-manager/internal/app"
	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	envFile  string
	logLevel string
	jsonOut  bool

	uploader uploaderFactory

	cfg *config.Config
	log zerolog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cli{uploader: gcsUploader})
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Manage a spreadsheet-backed personal finance ledger",
		Long: `ledger works against the same ledger and account registry as the
API server. The backend is chosen by STORE_BACKEND (sheets, bolt, memory).

Example:
  ledger setup --file accounts.yaml
  ledger list --bank BankA --date-start 2024-01-01
  ledger reconcile --apply
  ledger snapshot --bucket gs://my-backups/ledger`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load(c.envFile)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.LogLevel = c.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logger.NewWithOutput(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env", "", "path to a .env file (default is ./.env when present)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newBalancesCmd(c),
		newListCmd(c),
		newSetupCmd(c),
		newReconcileCmd(c),
		newSnapshotCmd(c),
		newAuditCmd(c),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// withService opens the configured backend for the duration of fn.
func (c *cli) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *ledger.Service, b *app.Backend, a *audit.Store) error) error {
	ctx := logger.WithContext(cmd.Context(), c.log)

	svc, auditStore, backend, err := app.NewService(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			c.log.Error().Err(err).Msg("Failed to close backend")
		}
	}()

	return fn(ctx, svc, backend, auditStore)
}

func (c *cli) printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
