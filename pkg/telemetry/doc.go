// Package telemetry provides observability instrumentation for the NFV manager.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and an event publisher that carries
// record lifecycle notifications.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
//	logger := tel.Logger.NewComponentLogger("reconciler")
//	logger.WithOwner("experimenter").WithRecordID(id).Info("refreshed record")
//
// # Orchestrator calls
//
// Every NFVO call made through the nfvo client is wrapped by
// RecordOrchestratorOperation, which opens an "nfvo.<operation>" span and
// records call count, latency and failures:
//
//	err := telemetry.RecordOrchestratorOperation(ctx, "get_nsr", func(ctx context.Context) error {
//	    nsr, err = agent.GetNSR(ctx, projectID, id)
//	    return err
//	})
//
// # Metrics
//
// Metrics live in a private registry and are exposed by Metrics.Serve.
// Recorders on a disabled or nil Metrics are no-ops.
//
// # Events
//
// The reconciler publishes a reconcile.completed event carrying the
// owner-grouped refreshed records. Subscribers forward it to whichever
// transport notifies experimenters:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    forward(e.Data["updates"])
//	}, telemetry.FilterByType(telemetry.EventTypeReconcileCompleted))
package telemetry
