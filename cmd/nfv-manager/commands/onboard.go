package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newOnboardCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "onboard <owner>",
		Short: "Onboard an experimenter",
		Long: `Prepare an experimenter's orchestrator account.

Onboarding:
  1. Creates the project named after the experimenter
  2. Creates the experimenter's user with the USER role in that project
  3. Registers one vim instance per testbed tenant listed in
     system.openstack-credentials-file

Every step is skipped when already done, so onboarding may be repeated.`,
		Example: `  # Onboard alice
  nfv-manager onboard alice --password s3cr3t

  # Take the password from the environment
  NFV_USER_PASSWORD=s3cr3t nfv-manager onboard alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owner := args[0]

			if password == "" {
				password = os.Getenv("NFV_USER_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("a password is required (--password or NFV_USER_PASSWORD)")
			}

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			tenants, err := rt.manager.Onboard(ctx, owner, password)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), tenants)
			}

			testbeds := make([]string, 0, len(tenants))
			for testbed := range tenants {
				testbeds = append(testbeds, testbed)
			}
			sort.Strings(testbeds)

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "TESTBED\tTENANT-ID")
			for _, testbed := range testbeds {
				fmt.Fprintf(w, "%s\t%s\n", testbed, tenants[testbed])
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password for the experimenter's user (use with caution)")

	return cmd
}

func newOffboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offboard <owner>",
		Short: "Remove an experimenter",
		Long: `Delete the experimenter's vim instances, user and project from the
orchestrator. Offboarding an unknown experimenter succeeds.`,
		Example: `  # Offboard alice
  nfv-manager offboard alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if err := rt.manager.Offboard(ctx, args[0]); err != nil {
				return err
			}
			log.Info().Str("owner", args[0]).Msg("Experimenter offboarded")
			return nil
		},
	}

	return cmd
}
