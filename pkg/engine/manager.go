package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/softfire/nfv-manager/pkg/catalog"
	"github.com/softfire/nfv-manager/pkg/nfvo"
	"github.com/softfire/nfv-manager/pkg/policy"
	"github.com/softfire/nfv-manager/pkg/stores"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

// OperatorKeyName is the name the operator's public key is imported under.
const OperatorKeyName = "softfire-operator-key"

// Admission decides whether a deployment request may proceed.
// *policy.Engine implements it.
type Admission interface {
	Evaluate(ctx context.Context, input *policy.Input) (*policy.Result, error)
}

// Options holds the collaborators of a Manager.
type Options struct {
	Store     stores.RecordStore
	Connector *nfvo.Connector
	Catalog   *catalog.Catalog
	Packages  catalog.Packages

	// Policies is optional. When nil Validate runs only its structural checks
	// (catalog membership, testbed keys, public key format) and no admission
	// policy, built-in or loaded, is evaluated.
	Policies Admission

	// Tenants is optional. When nil Onboard creates no vim instances.
	Tenants TenantProvisioner

	// Telemetry defaults to a no-op bundle.
	Telemetry *telemetry.Telemetry

	// Teardown defaults to DefaultRetryPolicy.
	Teardown *RetryPolicy

	// OperatorKey is the operator's public key, imported on every deployment
	// when set.
	OperatorKey string
}

// Manager drives the NS record lifecycle against one orchestrator.
// Foreground operations may run concurrently; the store is the only
// shared state.
type Manager struct {
	store     stores.RecordStore
	conn      *nfvo.Connector
	catalog   *catalog.Catalog
	packages  catalog.Packages
	policies  Admission
	tenants   TenantProvisioner
	tel       *telemetry.Telemetry
	logger    *telemetry.Logger
	retry     RetryPolicy
	opKey     string
	validator *validator.Validate
}

// NewManager creates a manager from opts.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("record store is required")
	}
	if opts.Connector == nil {
		return nil, errors.New("orchestrator connector is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.New(nil)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	retry := DefaultRetryPolicy()
	if opts.Teardown != nil {
		retry = *opts.Teardown
	}

	return &Manager{
		store:     opts.Store,
		conn:      opts.Connector,
		catalog:   opts.Catalog,
		packages:  opts.Packages,
		policies:  opts.Policies,
		tenants:   opts.Tenants,
		tel:       opts.Telemetry,
		logger:    opts.Telemetry.Logger.NewComponentLogger("engine"),
		retry:     retry,
		opKey:     strings.TrimSpace(opts.OperatorKey),
		validator: validator.New(),
	}, nil
}

// ReadOperatorKey reads the operator public key file. An empty path yields
// an empty key.
func ReadOperatorKey(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read operator key %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Catalog returns the catalog the manager deploys from.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Records returns the tracked records of owner, or all of them when owner
// is empty.
func (m *Manager) Records(ctx context.Context, owner string) ([]*stores.TrackedRecord, error) {
	if owner == "" {
		return m.store.All(ctx)
	}
	return m.store.ListByOwner(ctx, owner)
}

// session opens an orchestrator session for owner and classifies failures.
func (m *Manager) session(ctx context.Context, owner string) (*nfvo.Client, error) {
	client, err := m.conn.Session(ctx, owner)
	if err == nil {
		return client, nil
	}
	if errors.Is(err, nfvo.ErrProjectNotFound) {
		return nil, NewPermanentError("no orchestrator project for owner", err).
			WithResource(owner).
			WithCode(ErrCodeNoProject)
	}
	return nil, NewTransientError("failed to open orchestrator session", err).WithResource(owner)
}

// audit writes an audit entry. Failures are logged only.
func (m *Manager) audit(ctx context.Context, action, actor, recordID, details string) {
	entry := &stores.AuditEntry{Action: action, Actor: actor}
	if recordID != "" {
		entry.TargetID = &recordID
	}
	if details != "" {
		entry.Details = &details
	}
	if err := m.store.CreateAuditEntry(ctx, entry); err != nil {
		m.logger.WithError(err).WithRecordID(recordID).Warn("Failed to write audit entry")
	}
}
