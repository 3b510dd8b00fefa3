package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/softfire/nfv-manager/pkg/catalog"
	"github.com/softfire/nfv-manager/pkg/config"
	"github.com/softfire/nfv-manager/pkg/engine"
	"github.com/softfire/nfv-manager/pkg/nfvo"
	"github.com/softfire/nfv-manager/pkg/policy"
	"github.com/softfire/nfv-manager/pkg/stores"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

const defaultConfigHint = config.DefaultPath

// runtime holds everything a command needs to talk to the orchestrator.
type runtime struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	store    *stores.SQLiteStore
	catalog  *catalog.Catalog
	policies *policy.Engine
	manager  *engine.Manager
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	// Let the configured level through the process-wide floor.
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && lvl < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}

// newRuntime loads the configuration and builds the manager and its
// collaborators. Callers must call close.
func newRuntime(ctx context.Context, version string) (_ *runtime, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.close(context.Background())
		}
	}()

	rt.tel, err = telemetry.NewTelemetry(cfg.Telemetry(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt.store, err = stores.NewSQLiteStore(stores.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	if err := rt.store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}
	if err := rt.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate record store: %w", err)
	}

	rt.catalog, err = catalog.Load(cfg.System.CatalogFile)
	if err != nil {
		return nil, err
	}

	rt.policies, err = policy.NewEngine(rt.tel.Logger.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if len(cfg.Policy.Dirs) > 0 {
		if err := rt.policies.LoadPolicies(ctx, cfg.Policy.Dirs); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}
	if err := rt.disablePolicies(); err != nil {
		return nil, err
	}

	agent, err := nfvo.NewRESTAgent(cfg.NFVO.REST())
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator agent: %w", err)
	}

	operatorKey, err := engine.ReadOperatorKey(cfg.System.OperatorPublicKey)
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		Store:     rt.store,
		Connector: nfvo.NewConnector(agent),
		Catalog:   rt.catalog,
		Packages:  catalog.Packages{Root: cfg.System.CSARRoot},
		Policies:  rt.policies,
		Telemetry: rt.tel,
		Teardown: &engine.RetryPolicy{
			InitialDelay: cfg.Teardown.InitialDelay,
			Interval:     cfg.Teardown.Interval,
			MaxAttempts:  cfg.Teardown.MaxAttempts,
		},
		OperatorKey: operatorKey,
	}
	if cfg.System.TenantsFile != "" {
		tenants, err := engine.LoadStaticTenants(cfg.System.TenantsFile)
		if err != nil {
			return nil, err
		}
		opts.Tenants = tenants
	}

	rt.manager, err = engine.NewManager(opts)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("nfvo", cfg.NFVO.Host).
		Str("database", cfg.Database.Path).
		Int("catalog_entries", rt.catalog.Len()).
		Msg("Runtime ready")
	return rt, nil
}

// applyPolicies installs reloaded policies and keeps policy.disabled in force.
func (rt *runtime) applyPolicies(ctx context.Context, policies []policy.Policy) error {
	if err := rt.policies.Apply(ctx, policies); err != nil {
		return err
	}
	return rt.disablePolicies()
}

func (rt *runtime) disablePolicies() error {
	for _, name := range rt.cfg.Policy.Disabled {
		if err := rt.policies.SetEnabled(name, false); err != nil {
			return fmt.Errorf("policy.disabled: %w", err)
		}
	}
	return nil
}

func (rt *runtime) close(ctx context.Context) {
	if rt.tel != nil {
		if err := rt.tel.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down telemetry")
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close record store")
		}
	}
}

// readPayload reads a request or record from path, or stdin for "-".
func readPayload(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}
