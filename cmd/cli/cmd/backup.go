package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/finance-manager/internal/app"
	"github.com/dvloznov/finance-manager/internal/audit"
	"github.com/dvloznov/finance-manager/internal/domain"
	"github.com/dvloznov/finance-manager/internal/ledger"
	"github.com/dvloznov/finance-manager/internal/snapshot"
	"github.com/spf13/cobra"
)

// uploaderFactory opens an uploader and returns its release function.
type uploaderFactory func(ctx context.Context) (snapshot.Uploader, func() error, error)

func gcsUploader(ctx context.Context) (snapshot.Uploader, func() error, error) {
	u, err := snapshot.NewGCSUploader(ctx)
	if err != nil {
		return nil, nil, err
	}
	return u, u.Close, nil
}

// splitBucket accepts "bucket" or "gs://bucket/prefix".
func splitBucket(target string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(target, "gs://") {
		return target, "", nil
	}
	if bucket, prefix, err = snapshot.ParseURI(target); err == nil {
		return bucket, strings.TrimSuffix(prefix, "/"), nil
	}
	// gs://bucket with no object path
	bucket = strings.TrimSuffix(strings.TrimPrefix(target, "gs://"), "/")
	if bucket == "" || strings.Contains(bucket, "/") {
		return "", "", err
	}
	return bucket, "", nil
}

func newSnapshotCmd(c *cli) *cobra.Command {
	var target, prefix string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Upload CSV copies of the ledger and registry to Cloud Storage",
		Long: `snapshot writes <prefix>/<timestamp>/ledger.csv and registry.csv to
the bucket given by --bucket or GCS_BUCKET. The bucket may be a name or a
gs://bucket/prefix URI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				target = c.cfg.GCSBucket
			}
			if target == "" {
				return domain.NewValidationError("bucket", "is required (--bucket or GCS_BUCKET)")
			}
			bucket, uriPrefix, err := splitBucket(target)
			if err != nil {
				return err
			}
			if prefix == "" {
				prefix = uriPrefix
			}

			return c.withService(cmd, func(ctx context.Context, _ *ledger.Service, b *app.Backend, _ *audit.Store) error {
				uploader, release, err := c.uploader(ctx)
				if err != nil {
					return err
				}
				defer release()

				s := &snapshot.Snapshotter{
					Ledger:   b.Store,
					Accounts: b.Registry,
					Uploader: uploader,
					Bucket:   bucket,
					Prefix:   prefix,
				}
				manifest, err := s.Take(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(cmd, manifest)
				}
				c.printf(cmd, "Uploaded %d record(s) to %s\n", manifest.Records, manifest.LedgerURI)
				c.printf(cmd, "Uploaded %d account(s) to %s\n", manifest.Accounts, manifest.RegistryURI)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "bucket", "", "bucket name or gs:// URI (default GCS_BUCKET)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object name prefix (default \"snapshots\")")
	return cmd
}

func newAuditCmd(c *cli) *cobra.Command {
	var q audit.Query
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the mutation audit trail, newest first",
		Long: `audit lists recorded mutations. Entries with outcome "inconsistent"
mark operations that left the ledger and registry out of step; run
"ledger reconcile" to repair them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, _ *ledger.Service, _ *app.Backend, a *audit.Store) error {
				if a == nil {
					return errors.New("audit trail is disabled: set AUDIT_DB_PATH")
				}
				entries, err := a.List(ctx, q)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return c.printJSON(cmd, entries)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tOPERATION\tOUTCOME\tRECORD\tACCOUNT\tDELTA\tDETAIL")
				for _, e := range entries {
					account := ""
					if e.Bank != "" {
						account = e.Bank + "/" + e.Account
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.Format("2006-01-02 15:04:05"), e.Operation, e.Outcome,
						e.RecordID, account, e.Delta.String(), e.Detail)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&q.Outcome, "outcome", "", "filter by outcome (ok, failed, inconsistent)")
	cmd.Flags().StringVar(&q.RecordID, "record", "", "filter by record ID")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum number of entries")
	return cmd
}
