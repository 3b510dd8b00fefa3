package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRecordsCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List tracked records",
		Long: `List the NS records the manager is tracking, as of the last
reconciliation cycle. Records in ACTIVE or ERROR are no longer polled.`,
		Example: `  # List every tracked record
  nfv-manager records

  # List alice's records as JSON
  nfv-manager records --owner alice --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			records, err := rt.manager.Records(ctx, owner)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), records)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "NSR-ID\tOWNER\tSTATUS\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Owner, r.Status, r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only list the owner's records")

	return cmd
}

func newReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation cycle",
		Long: `Refresh every non-terminal tracked record once and print the
refreshed records grouped by owner.`,
		Example: `  # Refresh tracked records now
  nfv-manager reconcile --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			updates, err := rt.manager.ReconcileOnce(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), updates)
			}

			owners := make([]string, 0, len(updates))
			for owner := range updates {
				owners = append(owners, owner)
			}
			sort.Strings(owners)

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "OWNER\tREFRESHED")
			for _, owner := range owners {
				fmt.Fprintf(w, "%s\t%d\n", owner, len(updates[owner]))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			log.Debug().Int("owners", len(owners)).Msg("Reconciliation finished")
			return nil
		},
	}

	return cmd
}
