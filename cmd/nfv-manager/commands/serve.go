package commands

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/softfire/nfv-manager/pkg/engine"
	"github.com/softfire/nfv-manager/pkg/policy"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

func newServeCommand(version string) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation loop",
		Long: `Run the manager as a long-lived process.

The process:
  - Refreshes every non-terminal tracked record on a fixed interval
  - Reloads the catalog when its file changes
  - Reloads admission policies when policy.watch is set
  - Exposes Prometheus metrics

It runs until interrupted. A reconciliation cycle in progress is always
completed before the process exits.`,
		Example: `  # Run with the default configuration
  nfv-manager serve

  # Reconcile every 30 seconds
  nfv-manager serve --config /etc/softfire/nfv-manager.ini --interval 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, version)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				rt.close(shutdownCtx)
			}()

			if err := rt.store.HealthCheck(ctx); err != nil {
				return err
			}

			logger := rt.tel.Logger.NewComponentLogger("serve")
			zl := rt.tel.Logger.Zerolog()

			rt.tel.Events.Subscribe(func(event telemetry.Event) {
				logger.WithOwner(event.Owner).
					WithRecordID(event.RecordID).
					WithField("event", event.Type).
					Info(event.Message)
			}, telemetry.FilterByType(
				telemetry.EventTypeRecordStatusChanged,
				telemetry.EventTypeRecordReleased,
				telemetry.EventTypeDeployFailed,
			))

			go func() {
				if err := rt.tel.Metrics.Serve(ctx, logger); err != nil {
					logger.WithError(err).Error("Metrics endpoint failed")
				}
			}()

			if err := rt.catalog.Watch(ctx, zl, func(n int) {
				logger.Infof("Catalog reloaded with %d entries", n)
			}); err != nil {
				logger.WithError(err).Warn("Catalog hot reload disabled")
			}

			if rt.cfg.Policy.Watch && len(rt.cfg.Policy.Dirs) > 0 {
				loader := policy.NewLoader(zl)
				if err := loader.Watch(ctx, rt.cfg.Policy.Dirs, func(policies []policy.Policy) error {
					return rt.applyPolicies(context.Background(), policies)
				}); err != nil {
					logger.WithError(err).Warn("Policy hot reload disabled")
				}
			}

			if interval <= 0 {
				interval = rt.cfg.System.UpdateDelay
			}
			reconciler := engine.NewReconciler(rt.manager, interval, func(updates map[string][]string) {
				for owner, records := range updates {
					if len(records) > 0 {
						logger.WithOwner(owner).Debugf("Refreshed %d records", len(records))
					}
				}
			})

			log.Info().
				Str("nfvo", rt.cfg.NFVO.Host).
				Dur("interval", interval).
				Msg("NFV manager started")

			err = reconciler.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "reconciliation interval (default system.update-delay)")

	return cmd
}
