package stores

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a tracked record does not exist or cannot be
// read back from storage.
var ErrNotFound = errors.New("tracked record not found")

// Lifecycle states reported by the orchestrator that end observation.
const (
	StatusActive = "active"
	StatusError  = "error"
)

// Audit actions
const (
	AuditRecordDeployed  = "record.deployed"
	AuditRecordRefreshed = "record.refreshed"
	AuditRecordReleased  = "record.released"
)

// TrackedRecord is an NS record the manager caused to exist and keeps
// observing until it reaches a terminal state.
type TrackedRecord struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Status string `json:"status"`

	// LogLocations maps a component name to the hostnames of its instances.
	LogLocations map[string][]string `json:"log_locations"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the record no longer needs polling.
// Comparison is case-insensitive since the orchestrator reports upper case.
func (r *TrackedRecord) IsTerminal() bool {
	switch strings.ToLower(r.Status) {
	case StatusActive, StatusError:
		return true
	default:
		return false
	}
}

// AuditEntry represents an audit trail entry
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`              // e.g., "record.deployed"
	Actor     string    `json:"actor"`               // owner or "reconciler"
	TargetID  *string   `json:"target_id,omitempty"` // record id
	Details   *string   `json:"details,omitempty"`   // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// RecordStore defines the persistence contract for tracked records.
type RecordStore interface {
	// Upsert replaces any record with the same id, then inserts it.
	Upsert(ctx context.Context, record *TrackedRecord) error

	// Refresh replaces the stored record only if it is still tracked.
	// It returns ErrNotFound when the record was removed meanwhile.
	Refresh(ctx context.Context, record *TrackedRecord) error

	Get(ctx context.Context, id string) (*TrackedRecord, error)
	All(ctx context.Context) ([]*TrackedRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]*TrackedRecord, error)

	// Remove deletes the record. Removing an absent record is not an error.
	Remove(ctx context.Context, id string) error

	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, action *string, actor *string, limit, offset int) ([]*AuditEntry, error)

	HealthCheck(ctx context.Context) error
}
