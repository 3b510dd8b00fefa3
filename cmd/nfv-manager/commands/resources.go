package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/softfire/nfv-manager/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "validate <request-file>",
		Short: "Validate a resource request",
		Long: `Validate a resource request without contacting the orchestrator.

This command checks:
  - The request has a resource id
  - The resource is in the catalog or has a package to deploy from
  - Every testbed key names a unit of the catalog entry or ANY
  - The public key, when present, is a valid authorized key
  - Admission policies (OPA/rego)`,
		Example: `  # Validate a request
  nfv-manager validate --owner alice request.yaml

  # Validate a request read from stdin
  cat request.json | nfv-manager validate --owner alice -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			req, err := engine.ParseRequest(payload)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if err := rt.manager.Validate(ctx, owner, req); err != nil {
				return err
			}

			log.Info().
				Str("owner", owner).
				Str("resource_id", req.Properties.ResourceID).
				Msg("Request is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "experimenter the request belongs to")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newProvideCommand() *cobra.Command {
	var (
		owner      string
		skipChecks bool
	)

	cmd := &cobra.Command{
		Use:   "provide <request-file>",
		Short: "Deploy a resource request",
		Long: `Deploy a resource request as an NS record in the owner's project.

The request is validated first unless --skip-validation is given. On
success the serialized record is printed; keep it to release the record
later.`,
		Example: `  # Deploy a catalog service on every testbed
  nfv-manager provide --owner alice request.yaml > record.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			req, err := engine.ParseRequest(payload)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if !skipChecks {
				if err := rt.manager.Validate(ctx, owner, req); err != nil {
					return err
				}
			}

			records, err := rt.manager.Provide(ctx, owner, req)
			if err != nil {
				return err
			}
			for _, record := range records {
				fmt.Fprintln(cmd.OutOrStdout(), record)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "experimenter the record is deployed for")
	cmd.Flags().BoolVar(&skipChecks, "skip-validation", false, "deploy without validating the request")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newReleaseCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "release <record-file>",
		Short: "Tear down a deployed record",
		Long: `Tear down a record previously returned by provide.

The record is deleted, the manager waits for the orchestrator to stop
reporting it, then deletes its descriptor and forgets it locally.
Orchestrator failures are logged and reported but never abort the
teardown. A payload that is not a deployed record is ignored.`,
		Example: `  # Release a record
  nfv-manager release --owner alice record.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			result := rt.manager.Release(ctx, owner, string(payload))
			if jsonOutput {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, e.Error())
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"id":     result.RecordID,
					"no_op":  result.NoOp,
					"errors": errs,
				})
			}

			switch {
			case result.NoOp:
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to release")
			case len(result.Errors) > 0:
				fmt.Fprintf(cmd.OutOrStdout(), "Released %s with %d errors\n", result.RecordID, len(result.Errors))
				for _, e := range result.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %v\n", e)
				}
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Released %s\n", result.RecordID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "experimenter the record belongs to")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newListCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requestable resources",
		Long: `List the catalog services and, when --owner is given, the images,
networks and flavors of every vim instance in the owner's project.`,
		Example: `  # List catalog services
  nfv-manager list

  # Include alice's testbed resources
  nfv-manager list --owner alice --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, "")
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			resources, err := rt.manager.List(ctx, owner)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resources)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "RESOURCE-ID\tNODE-TYPE\tTESTBED\tCARDINALITY\tDESCRIPTION")
			for _, r := range resources {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ResourceID, r.NodeType, r.Testbed, r.Cardinality, r.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "include the owner's testbed resources")

	return cmd
}
