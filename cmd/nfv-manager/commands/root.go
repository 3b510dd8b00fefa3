package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nfv-manager",
		Short: "SoftFIRE NFV manager - NS record lifecycle and reconciliation",
		Long: `nfv-manager deploys network services on an Open Baton orchestrator on
behalf of experimenters, tracks the resulting NS records and tears them down
again.

Features:
  - Catalog and user-uploaded CSAR deployments
  - Per-unit testbed placement
  - Bounded, idempotent teardown
  - Periodic status reconciliation of tracked records
  - Rego admission policies for deployment requests`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default "+defaultConfigHint+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newProvideCommand())
	rootCmd.AddCommand(newReleaseCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newRecordsCommand())
	rootCmd.AddCommand(newReconcileCommand())
	rootCmd.AddCommand(newOnboardCommand())
	rootCmd.AddCommand(newOffboardCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newAuditCommand())

	return rootCmd
}
