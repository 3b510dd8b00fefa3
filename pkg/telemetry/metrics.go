package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the NFV manager.
// A Metrics built with metrics disabled (or the zero value) records nothing.
type Metrics struct {
	config MetricsConfig

	deployments    *prometheus.CounterVec
	deployDuration *prometheus.HistogramVec
	releases       *prometheus.CounterVec
	deletePolls    *prometheus.CounterVec

	reconcileCycles   *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	recordsRefreshed  prometheus.Counter
	recordsSkipped    *prometheus.CounterVec
	trackedRecords    prometheus.Gauge

	orchestratorCalls    *prometheus.CounterVec
	orchestratorDuration *prometheus.HistogramVec
	orchestratorErrors   *prometheus.CounterVec

	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Total number of NS record deployments by branch and outcome",
			},
			[]string{"branch", "outcome"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "Duration of deployments in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"branch"},
		),
		releases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "releases_total",
				Help:      "Total number of releases by outcome",
			},
			[]string{"outcome"},
		),
		deletePolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delete_polls_total",
				Help:      "Total number of poll-until-gone attempts after a delete",
			},
			[]string{"kind"},
		),

		reconcileCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_cycles_total",
				Help:      "Total number of reconciliation cycles",
			},
			[]string{"outcome"},
		),
		reconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_cycle_duration_seconds",
				Help:      "Duration of reconciliation cycles in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		recordsRefreshed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_refreshed_total",
				Help:      "Total number of records refreshed from the orchestrator",
			},
		),
		recordsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_skipped_total",
				Help:      "Total number of records skipped during reconciliation",
			},
			[]string{"reason"},
		),
		trackedRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tracked_records",
				Help:      "Current number of tracked NS records",
			},
		),

		orchestratorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestrator_calls_total",
				Help:      "Total number of NFVO API calls",
			},
			[]string{"operation"},
		),
		orchestratorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "orchestrator_call_duration_seconds",
				Help:      "Duration of NFVO API calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		orchestratorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestrator_errors_total",
				Help:      "Total number of failed NFVO API calls",
			},
			[]string{"operation"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.deployments,
		m.deployDuration,
		m.releases,
		m.deletePolls,
		m.reconcileCycles,
		m.reconcileDuration,
		m.recordsRefreshed,
		m.recordsSkipped,
		m.trackedRecords,
		m.orchestratorCalls,
		m.orchestratorDuration,
		m.orchestratorErrors,
		m.errorsByClass,
	)

	return m, nil
}

// RecordDeployment records a finished deployment.
func (m *Metrics) RecordDeployment(branch, outcome string, duration time.Duration) {
	if m == nil || m.deployments == nil {
		return
	}
	m.deployments.WithLabelValues(branch, outcome).Inc()
	m.deployDuration.WithLabelValues(branch).Observe(duration.Seconds())
}

// RecordRelease records a finished release.
func (m *Metrics) RecordRelease(outcome string) {
	if m == nil || m.releases == nil {
		return
	}
	m.releases.WithLabelValues(outcome).Inc()
}

// RecordDeletePoll counts one poll-until-gone attempt for kind (nsr, nsd).
func (m *Metrics) RecordDeletePoll(kind string) {
	if m == nil || m.deletePolls == nil {
		return
	}
	m.deletePolls.WithLabelValues(kind).Inc()
}

// RecordReconcileCycle records one reconciliation cycle.
func (m *Metrics) RecordReconcileCycle(outcome string, duration time.Duration, refreshed int) {
	if m == nil || m.reconcileCycles == nil {
		return
	}
	m.reconcileCycles.WithLabelValues(outcome).Inc()
	m.reconcileDuration.Observe(duration.Seconds())
	m.recordsRefreshed.Add(float64(refreshed))
}

// RecordSkipped counts a record skipped during reconciliation.
func (m *Metrics) RecordSkipped(reason string) {
	if m == nil || m.recordsSkipped == nil {
		return
	}
	m.recordsSkipped.WithLabelValues(reason).Inc()
}

// SetTrackedRecords sets the current count of tracked records.
func (m *Metrics) SetTrackedRecords(count int) {
	if m == nil || m.trackedRecords == nil {
		return
	}
	m.trackedRecords.Set(float64(count))
}

// RecordOrchestratorCall records an NFVO call with its duration.
func (m *Metrics) RecordOrchestratorCall(operation string, duration time.Duration, err error) {
	if m == nil || m.orchestratorCalls == nil {
		return
	}
	m.orchestratorCalls.WithLabelValues(operation).Inc()
	m.orchestratorDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.orchestratorErrors.WithLabelValues(operation).Inc()
	}
}

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, logger *Logger) error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("metrics listening on %s%s", m.config.ListenAddress, m.config.Path)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
