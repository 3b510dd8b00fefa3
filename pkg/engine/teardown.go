package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/softfire/nfv-manager/pkg/nfvo"
	"github.com/softfire/nfv-manager/pkg/stores"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

// RetryPolicy bounds the wait for a deleted record to disappear.
type RetryPolicy struct {
	// InitialDelay is slept once after the delete request.
	InitialDelay time.Duration

	// Interval separates two fetches of the record.
	Interval time.Duration

	// MaxAttempts is the number of fetches before giving up.
	MaxAttempts int
}

// DefaultRetryPolicy waits 5s, then polls every 2s up to 500 times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 5 * time.Second,
		Interval:     2 * time.Second,
		MaxAttempts:  500,
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseResult reports what a release did. Errors holds the delete
// failures that were logged and swallowed.
type ReleaseResult struct {
	RecordID string
	NoOp     bool
	Errors   []error
}

// recordRef is the part of a serialized record teardown needs.
type recordRef struct {
	ID                  string `json:"id"`
	DescriptorReference string `json:"descriptor_reference"`
}

// parseRecordRef returns false when payload is not a deployed record, for
// example a deployment request that never produced one.
func parseRecordRef(payload string) (recordRef, bool) {
	var ref recordRef
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &ref); err != nil {
		return ref, false
	}
	return ref, ref.ID != "" && ref.DescriptorReference != ""
}

// Release tears down a record previously returned by Provide. It never
// fails from the caller's point of view: delete failures are logged and
// reported in the result, and the local tracking entry is always removed.
func (m *Manager) Release(ctx context.Context, owner, payload string) *ReleaseResult {
	ref, ok := parseRecordRef(payload)
	if !ok {
		m.logger.WithOwner(owner).Debug("Release payload is not a deployed record, nothing to do")
		m.tel.Metrics.RecordRelease("noop")
		return &ReleaseResult{NoOp: true}
	}

	ctx = m.tel.WithContext(ctx)
	op := m.tel.StartOperation(ctx, "release",
		telemetry.AttrOwner.String(owner),
		telemetry.AttrRecordID.String(ref.ID),
	)
	ctx = op.Ctx

	result := &ReleaseResult{RecordID: ref.ID}
	logger := m.logger.WithOwner(owner).WithRecordID(ref.ID)
	logger.Info("Releasing record")

	defer func() {
		m.forget(context.WithoutCancel(ctx), owner, ref.ID)
		outcome := "success"
		if len(result.Errors) > 0 {
			outcome = "partial"
		}
		m.tel.Metrics.RecordRelease(outcome)
		op.End(nil)
	}()

	client, err := m.session(ctx, owner)
	if err != nil {
		logger.WithError(err).Error("Cannot open a session, only the tracking entry is removed")
		result.Errors = append(result.Errors, err)
		return result
	}

	if _, err := client.GetNSD(ctx, ref.DescriptorReference); err != nil {
		derr := NewDeleteError("descriptor lookup failed", err).WithResource(ref.DescriptorReference)
		logger.WithError(derr).Warn("Descriptor not found, only the tracking entry is removed")
		result.Errors = append(result.Errors, derr)
		return result
	}

	if err := m.deleteRecord(ctx, client, ref.ID); err != nil {
		logger.WithError(err).Error("Failed to delete record")
		m.tel.Metrics.RecordError(ClassOf(err))
		result.Errors = append(result.Errors, err)
	}

	if err := client.DeleteNSD(ctx, ref.DescriptorReference); err != nil {
		derr := NewDeleteError("failed to delete descriptor", err).
			WithResource(ref.DescriptorReference).
			WithOperation("delete_nsd")
		logger.WithError(derr).Error("Failed to delete descriptor")
		m.tel.Metrics.RecordError(ClassOf(derr))
		result.Errors = append(result.Errors, derr)
	}

	logger.Info("Record released")
	return result
}

// deleteRecord deletes the record and waits until the orchestrator no
// longer reports it. A record that is already gone counts as deleted.
func (m *Manager) deleteRecord(ctx context.Context, client *nfvo.Client, id string) error {
	if err := client.DeleteNSR(ctx, id); err != nil {
		if nfvo.IsNotFound(err) {
			return nil
		}
		return NewDeleteError("failed to delete record", err).
			WithResource(id).
			WithOperation("delete_nsr")
	}

	if err := sleep(ctx, m.retry.InitialDelay); err != nil {
		return NewDeleteError("interrupted while waiting for record removal", err).WithResource(id)
	}

	for attempt := 0; attempt < m.retry.MaxAttempts; attempt++ {
		_, err := client.GetNSR(ctx, id)
		if nfvo.IsNotFound(err) {
			return nil
		}
		m.tel.Metrics.RecordDeletePoll("nsr")

		if attempt == m.retry.MaxAttempts-1 {
			break
		}
		if err := sleep(ctx, m.retry.Interval); err != nil {
			return NewDeleteError("interrupted while waiting for record removal", err).WithResource(id)
		}
	}

	return NewDeleteError(fmt.Sprintf("record still present after %d checks", m.retry.MaxAttempts), nil).
		WithResource(id).
		WithCode(ErrCodeTimeout)
}

// forget removes the tracking entry and records the release. Once removed,
// a concurrent reconciliation cycle can no longer bring the entry back.
func (m *Manager) forget(ctx context.Context, owner, id string) {
	if err := m.store.Remove(ctx, id); err != nil {
		m.logger.WithOwner(owner).WithRecordID(id).WithError(err).Error("Failed to remove tracking entry")
		return
	}
	m.audit(ctx, stores.AuditRecordReleased, owner, id, "")
	_ = m.tel.Events.PublishRecordReleased(owner, id)
}
