package config

import (
	"time"

	"github.com/softfire/nfv-manager/pkg/nfvo"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

// DefaultPath is where the manager looks for its configuration.
const DefaultPath = "/etc/softfire/nfv-manager.ini"

// Config is the complete manager configuration.
type Config struct {
	NFVO     NFVOConfig     `yaml:"nfvo"`
	System   SystemConfig   `yaml:"system"`
	Database DatabaseConfig `yaml:"database"`
	Teardown TeardownConfig `yaml:"teardown"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Policy   PolicyConfig   `yaml:"policy"`
}

// NFVOConfig describes how to reach the orchestrator.
type NFVOConfig struct {
	Host     string        `yaml:"ip" validate:"required,hostname_rfc1123|ip"`
	Port     int           `yaml:"port" validate:"min=1,max=65535"`
	HTTPS    bool          `yaml:"https"`
	Username string        `yaml:"username" validate:"required"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

// REST returns the agent configuration for the orchestrator.
func (c NFVOConfig) REST() nfvo.RESTConfig {
	return nfvo.RESTConfig{
		Host:     c.Host,
		Port:     c.Port,
		HTTPS:    c.HTTPS,
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.Timeout,
	}
}

// SystemConfig holds the engine's file locations and loop timing.
type SystemConfig struct {
	// UpdateDelay is the pause between reconciliation cycles.
	UpdateDelay time.Duration `yaml:"update-delay" validate:"gt=0"`

	// CSARRoot holds catalog package directories and experimenter uploads.
	CSARRoot string `yaml:"temp-csar-location" validate:"required"`

	// CatalogFile is the JSON or YAML catalog of deployable services.
	CatalogFile string `yaml:"available-nsds-file-path" validate:"required"`

	// OperatorPublicKey is a file holding the operator's public key. Empty
	// disables the operator key import.
	OperatorPublicKey string `yaml:"softfire-public-key"`

	// TenantsFile lists the testbed tenants vim instances are registered
	// for during onboarding.
	TenantsFile string `yaml:"openstack-credentials-file"`
}

// DatabaseConfig locates the tracked-record store.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// TeardownConfig bounds the wait for a deleted record to disappear.
type TeardownConfig struct {
	InitialDelay time.Duration `yaml:"initial-delay" validate:"gte=0"`
	Interval     time.Duration `yaml:"interval" validate:"gte=0"`
	MaxAttempts  int           `yaml:"max-attempts" validate:"min=1"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"oneof=console json"`

	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen-address" validate:"required_if=Enabled true"`
	Path          string `yaml:"path" validate:"omitempty,startswith=/"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling-rate" validate:"gte=0,lte=1"`
	Insecure     bool    `yaml:"insecure"`
}

// PolicyConfig lists admission policy locations.
type PolicyConfig struct {
	Dirs  []string `yaml:"dirs"`
	Watch bool     `yaml:"watch"`

	// Disabled names policies, built-in or loaded, that are never evaluated.
	Disabled []string `yaml:"disabled"`
}

// Default returns the configuration used for every value the file omits.
func Default() *Config {
	return &Config{
		NFVO: NFVOConfig{
			Host:     "localhost",
			Port:     8080,
			Username: "admin",
			Timeout:  60 * time.Second,
		},
		System: SystemConfig{
			UpdateDelay: 10 * time.Second,
			CSARRoot:    "/etc/softfire/experiment-nsd-csar",
			CatalogFile: "/etc/softfire/available-nsds.json",
		},
		Database: DatabaseConfig{
			Path: "/var/lib/softfire/nfv-manager.db",
		},
		Teardown: TeardownConfig{
			InitialDelay: 5 * time.Second,
			Interval:     2 * time.Second,
			MaxAttempts:  500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
		Tracing: TracingConfig{
			Exporter:     "none",
			SamplingRate: 1.0,
			Insecure:     true,
		},
	}
}

// Telemetry converts the ambient sections into a telemetry configuration.
func (c *Config) Telemetry(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	if version != "" {
		tc.ServiceVersion = version
	}
	tc.Logging.Level = c.Logging.Level
	tc.Logging.Format = c.Logging.Format
	if c.Logging.Output != "" {
		tc.Logging.Output = c.Logging.Output
	}
	tc.Metrics.Enabled = c.Metrics.Enabled
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	if c.Metrics.Path != "" {
		tc.Metrics.Path = c.Metrics.Path
	}
	tc.Tracing.Enabled = c.Tracing.Enabled
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Tracing.SamplingRate
	tc.Tracing.Insecure = c.Tracing.Insecure
	return tc
}
