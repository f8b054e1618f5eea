package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/finance-manager/internal/app"
	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/query"
	"github.com/spf13/cobra"
)

func newBalancesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Show account balances grouped by bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *ledger.Service, _ *app.Backend, _ *audit.Store) error {
				summary, err := svc.Balances(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(cmd, summary)
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}
}

func printSummary(cmd *cobra.Command, summary domain.RegistrySummary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, bank := range summary.Banks {
		fmt.Fprintf(w, "%s\t\t\t%s\n", bank.Bank, bank.Total.StringFixed(2))
		for _, e := range bank.Accounts {
			fmt.Fprintf(w, "  %s\t%s\t%s\t\n", e.Account, e.Type, e.Balance.StringFixed(2))
		}
	}
	fmt.Fprintf(w, "Total\t\t\t%s\n", summary.GrandTotal.StringFixed(2))
	w.Flush()
}

// filterFlags are the list predicates, named like the HTTP query parameters.
var filterFlags = []struct{ name, usage string }{
	{"date-start", "inclusive start date (YYYY-MM-DD)"},
	{"date-end", "inclusive end date (YYYY-MM-DD)"},
	{"bank", "bank name"},
	{"account", "account name"},
	{"type", "transaction type"},
	{"direction", "Incoming or Outgoing"},
	{"amount-min", "minimum signed amount"},
	{"amount-max", "maximum signed amount"},
	{"keyword", "case-insensitive substring of any field"},
}

func newListCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger records matching the given filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			for _, f := range filterFlags {
				if v, _ := cmd.Flags().GetString(f.name); v != "" {
					params.Set(queryName(f.name), v)
				}
			}
			filter, err := query.ParseFilter(params)
			if err != nil {
				return err
			}

			return c.withService(cmd, func(ctx context.Context, svc *ledger.Service, _ *app.Backend, _ *audit.Store) error {
				records, err := svc.List(ctx, filter)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(cmd, records)
				}
				printRecords(cmd, records)
				return nil
			})
		},
	}
	for _, f := range filterFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
	return cmd
}

// queryName turns a flag name into its query parameter name.
func queryName(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func printRecords(cmd *cobra.Command, records []domain.Transaction) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tBANK\tACCOUNT\tAMOUNT\tPURPOSE\tREFUND")
	for _, tx := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.Type, tx.Bank, tx.Account,
			tx.Amount.StringFixed(2), tx.Purpose, tx.RefundStatus)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "%d record(s)\n", len(records))
}

func newSetupCmd(c *cli) *cobra.Command {
	var (
		file  string
		reset bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Merge accounts from a YAML file into the registry",
		Long: `setup reads banks and accounts from a YAML file:

  banks:
    - name: BankA
      accounts:
        - name: Chequing
          type: Checking
          balance: "150.00"

New accounts start at their balance, recorded as an opening balance in
the ledger. Existing accounts keep their balance. With --reset the
registry is replaced by the file's contents and the ledger is untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := config.LoadAccounts(file)
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc *ledger.Service, _ *app.Backend, _ *audit.Store) error {
				result, err := svc.Setup(ctx, ledger.SetupInput{Accounts: accounts, Reset: reset})
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(cmd, result)
				}
				c.printf(cmd, "Added %d account(s), updated %d, %d opening record(s)\n",
					len(result.Added), len(result.Updated), len(result.OpeningRecords))
				printSummary(cmd, result.Summary)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "accounts YAML file (required)")
	cmd.Flags().BoolVar(&reset, "reset", false, "replace the registry instead of merging")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newReconcileCmd(c *cli) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute balances from the ledger and report drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *ledger.Service, _ *app.Backend, _ *audit.Store) error {
				report, err := svc.RecomputeBalances(ctx, apply)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(cmd, report)
				}

				c.printf(cmd, "Checked %d record(s)\n", report.Records)
				for _, d := range report.Drifted {
					c.printf(cmd, "  %s/%s: registry %s, ledger %s, drift %s\n",
						d.Bank, d.Account, d.Recorded.StringFixed(2), d.Expected.StringFixed(2), d.Drift.StringFixed(2))
				}
				for _, k := range report.Unknown {
					c.printf(cmd, "  %s: in the ledger but not in the registry\n", k)
				}
				switch {
				case report.Consistent:
					c.printf(cmd, "Registry is consistent with the ledger\n")
				case report.Applied:
					c.printf(cmd, "Rewrote %d drifted balance(s)\n", len(report.Drifted))
				case len(report.Drifted) > 0:
					c.printf(cmd, "Run with --apply to rewrite drifted balances\n")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "rewrite drifted registry balances")
	return cmd
}
