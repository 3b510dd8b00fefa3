package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/softfire/nfv-manager/pkg/nfvo"
	"github.com/softfire/nfv-manager/pkg/stores"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

// Reasons a record is left out of a reconciliation cycle.
const (
	SkipNoProject = "no_project"
	SkipFetch     = "fetch"
	SkipMalformed = "malformed"
	SkipErrorDoc  = "error_document"
	SkipReleased  = "released"
	SkipStore     = "store"
)

// ReconcileOnce refreshes every non-terminal tracked record from the
// orchestrator and returns the refreshed records, serialized and grouped
// by owner. Every owner with a tracked record has a key, possibly with an
// empty list. A record that cannot be refreshed keeps its stored status
// and does not affect the others.
func (m *Manager) ReconcileOnce(ctx context.Context) (_ map[string][]string, err error) {
	ctx = m.tel.WithContext(ctx)
	op := m.tel.StartOperation(ctx, "reconcile")
	defer func() { op.End(err) }()
	ctx = op.Ctx

	records, err := m.store.All(ctx)
	if err != nil {
		m.tel.Metrics.RecordReconcileCycle("failure", op.Timer.Duration(), 0)
		return nil, NewTransientError("failed to read tracked records", err)
	}
	m.tel.Metrics.SetTrackedRecords(len(records))

	byOwner := make(map[string][]*stores.TrackedRecord)
	for _, r := range records {
		byOwner[r.Owner] = append(byOwner[r.Owner], r)
	}

	result := make(map[string][]string, len(byOwner))
	refreshed := 0
	for owner, owned := range byOwner {
		result[owner] = []string{}

		var pending []*stores.TrackedRecord
		for _, r := range owned {
			if !r.IsTerminal() {
				pending = append(pending, r)
			}
		}
		if len(pending) == 0 {
			continue
		}

		logger := m.logger.WithOwner(owner)
		client, err := m.session(ctx, owner)
		if err != nil {
			logger.WithError(err).Warn("Skipping owner for this cycle")
			for range pending {
				m.tel.Metrics.RecordSkipped(SkipNoProject)
			}
			continue
		}

		for _, r := range pending {
			serialized, ok := m.refresh(ctx, client, r)
			if !ok {
				continue
			}
			result[owner] = append(result[owner], serialized)
			refreshed++
		}
	}

	m.tel.Metrics.RecordReconcileCycle("success", op.Timer.Duration(), refreshed)
	_ = m.tel.Events.PublishReconcileCompleted(result)
	return result, nil
}

// refresh fetches one record and stores its new state. It returns false
// when the record is skipped for this cycle.
func (m *Manager) refresh(ctx context.Context, client *nfvo.Client, record *stores.TrackedRecord) (string, bool) {
	logger := m.logger.WithOwner(record.Owner).WithRecordID(record.ID)

	nsr, err := client.GetNSR(ctx, record.ID)
	if err != nil {
		reason := skipReason(err)
		logger.WithError(err).WithField("reason", reason).Warn("Skipping record for this cycle")
		m.tel.Metrics.RecordSkipped(reason)
		return "", false
	}

	updated := &stores.TrackedRecord{
		ID:           record.ID,
		Owner:        record.Owner,
		Status:       nsr.Status,
		LogLocations: nsr.LogLocations(),
	}
	if err := m.store.Refresh(ctx, updated); err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			logger.Debug("Record was released during the cycle")
			m.tel.Metrics.RecordSkipped(SkipReleased)
		} else {
			logger.WithError(err).Warn("Failed to store refreshed record")
			m.tel.Metrics.RecordSkipped(SkipStore)
		}
		return "", false
	}

	if !strings.EqualFold(record.Status, nsr.Status) {
		logger.Infof("Record status changed from %s to %s", record.Status, nsr.Status)
		m.audit(ctx, stores.AuditRecordRefreshed, "reconciler", record.ID,
			fmt.Sprintf(`{"old_status":%q,"new_status":%q}`, record.Status, nsr.Status))
		_ = m.tel.Events.PublishRecordStatusChanged(record.Owner, record.ID, record.Status, nsr.Status)
	}
	return nsr.Serialize(), true
}

func skipReason(err error) string {
	var apiErr *nfvo.APIError
	switch {
	case errors.Is(err, nfvo.ErrMalformedResponse):
		return SkipMalformed
	case errors.As(err, &apiErr):
		return SkipErrorDoc
	default:
		return SkipFetch
	}
}

// Reconciler runs ReconcileOnce on a fixed interval until stopped.
type Reconciler struct {
	manager  *Manager
	interval time.Duration
	handler  func(map[string][]string)
	logger   *telemetry.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReconciler creates a loop that hands every cycle's result to handler.
// handler may be nil.
func NewReconciler(m *Manager, interval time.Duration, handler func(map[string][]string)) *Reconciler {
	return &Reconciler{
		manager:  m,
		interval: interval,
		handler:  handler,
		logger:   m.tel.Logger.NewComponentLogger("reconciler"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run sleeps the interval, then runs a cycle, until Stop is called or ctx
// is done. Stop is checked between cycles only; a running cycle always
// completes.
func (r *Reconciler) Run(ctx context.Context) error {
	defer close(r.done)
	r.logger.Infof("Reconciliation loop started, interval %s", r.interval)

	for {
		select {
		case <-time.After(r.interval):
		case <-r.stopCh:
			r.logger.Info("Reconciliation loop stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-r.stopCh:
			r.logger.Info("Reconciliation loop stopped")
			return nil
		default:
		}

		r.cycle(context.WithoutCancel(ctx))
	}
}

func (r *Reconciler) cycle(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("Reconciliation cycle panicked: %v", p)
		}
	}()

	result, err := r.manager.ReconcileOnce(ctx)
	if err != nil {
		r.logger.WithError(err).Error("Reconciliation cycle failed")
		return
	}
	if r.handler != nil {
		r.handler(result)
	}
}

// Stop asks the loop to end after the current cycle.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Done is closed when Run returns.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}
