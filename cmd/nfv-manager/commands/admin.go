package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies [name]",
		Short: "Show admission policies",
		Long: `List the admission policies the manager evaluates on validate: the
built-in ones plus those loaded from policy.dirs. Policies named in
policy.disabled are listed as disabled.

With a name, print that policy's Rego source.`,
		Example: `  # List policies
  nfv-manager policies

  # Show the package-path policy
  nfv-manager policies package-path`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if len(args) == 1 {
				p, err := rt.policies.GetPolicy(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), p)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s (%s, enabled=%t)\n%s\n", p.Name, p.Severity, p.Enabled, p.Rego)
				return nil
			}

			policies := rt.policies.ListPolicies()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), policies)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tSOURCE")
			for _, p := range policies {
				source := p.Source
				if source == "" {
					source = "built-in"
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, source)
			}
			return w.Flush()
		},
	}

	return cmd
}

func newAuditCommand() *cobra.Command {
	var (
		action string
		actor  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the record audit trail",
		Long: `List audit entries, newest first. Entries are written when a record is
deployed, released, or changes status during reconciliation.`,
		Example: `  # Last 20 entries
  nfv-manager audit --limit 20

  # Everything alice released
  nfv-manager audit --actor alice --action record.released`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			var actionFilter, actorFilter *string
			if action != "" {
				actionFilter = &action
			}
			if actor != "" {
				actorFilter = &actor
			}

			entries, err := rt.store.ListAuditEntries(ctx, actionFilter, actorFilter, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "TIME\tACTION\tACTOR\tNSR-ID")
			for _, e := range entries {
				target := "-"
				if e.TargetID != nil {
					target = *e.TargetID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.Actor, target)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "only entries with this action (record.deployed, record.refreshed, record.released)")
	cmd.Flags().StringVar(&actor, "actor", "", "only entries by this owner, or reconciler")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")

	return cmd
}
