package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
}

func TestLoad_INI(t *testing.T) {
	path := writeConfig(t, "nfv-manager.ini", `
[nfvo]
ip = 10.0.0.5
port = 8443
https = true
username = admin
password = openbaton

[system]
update-delay = 30
temp-csar-location = /srv/csar/
available-nsds-file-path = /srv/available-nsds.json
softfire-public-key = /srv/softfire-key.pub
openstack-credentials-file = /etc/softfire/openstack-credentials.json

[database]
url = sqlite:////var/lib/softfire/nfv.db

[policy]
dirs = /etc/softfire/policies, /srv/policies
disabled = known-testbeds
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.NFVO.Host != "10.0.0.5" || cfg.NFVO.Port != 8443 || !cfg.NFVO.HTTPS {
		t.Errorf("Unexpected nfvo section: %+v", cfg.NFVO)
	}
	if cfg.NFVO.Password != "openbaton" {
		t.Errorf("Expected password to be read, got %q", cfg.NFVO.Password)
	}
	if cfg.System.UpdateDelay != 30*time.Second {
		t.Errorf("Expected update delay 30s, got %v", cfg.System.UpdateDelay)
	}
	if cfg.System.CSARRoot != "/srv/csar" {
		t.Errorf("Expected trailing slash to be trimmed, got %q", cfg.System.CSARRoot)
	}
	if cfg.System.OperatorPublicKey != "/srv/softfire-key.pub" {
		t.Errorf("Unexpected operator key path: %q", cfg.System.OperatorPublicKey)
	}
	if cfg.System.TenantsFile != "/etc/softfire/openstack-credentials.json" {
		t.Errorf("Unexpected credentials path: %q", cfg.System.TenantsFile)
	}
	if cfg.Database.Path != "/var/lib/softfire/nfv.db" {
		t.Errorf("Unexpected database path: %q", cfg.Database.Path)
	}
	if len(cfg.Policy.Dirs) != 2 || cfg.Policy.Dirs[1] != "/srv/policies" {
		t.Errorf("Unexpected policy dirs: %v", cfg.Policy.Dirs)
	}
	if len(cfg.Policy.Disabled) != 1 || cfg.Policy.Disabled[0] != "known-testbeds" {
		t.Errorf("Unexpected disabled policies: %v", cfg.Policy.Disabled)
	}

	// Sections the file omits keep their defaults.
	if cfg.Teardown.MaxAttempts != 500 || cfg.Teardown.Interval != 2*time.Second {
		t.Errorf("Unexpected teardown defaults: %+v", cfg.Teardown)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "nfv-manager.yaml", `
nfvo:
  ip: nfvo.softfire.local
  username: admin
system:
  update-delay: 5s
teardown:
  initial-delay: 0s
  interval: 100ms
  max-attempts: 3
logging:
  level: debug
  format: json
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.NFVO.Host != "nfvo.softfire.local" || cfg.NFVO.Port != 8080 {
		t.Errorf("Unexpected nfvo section: %+v", cfg.NFVO)
	}
	if cfg.System.UpdateDelay != 5*time.Second {
		t.Errorf("Expected 5s, got %v", cfg.System.UpdateDelay)
	}
	if cfg.Teardown.Interval != 100*time.Millisecond || cfg.Teardown.MaxAttempts != 3 {
		t.Errorf("Unexpected teardown section: %+v", cfg.Teardown)
	}

	tc := cfg.Telemetry("1.2.3")
	if tc.ServiceVersion != "1.2.3" || tc.Logging.Level != "debug" || tc.Logging.Format != "json" {
		t.Errorf("Unexpected telemetry config: %+v", tc)
	}
	if tc.Metrics.Enabled {
		t.Error("Expected metrics to be disabled")
	}
	if tc.Logging.Output != "stderr" {
		t.Errorf("Expected logs on stderr, got %q", tc.Logging.Output)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("Telemetry config is invalid: %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		field   string
	}{
		{
			name:    "bad port",
			file:    "c.ini",
			content: "[nfvo]\nport = 70000\n",
			field:   "Port",
		},
		{
			name:    "zero update delay",
			file:    "c.ini",
			content: "[system]\nupdate-delay = 0\n",
			field:   "UpdateDelay",
		},
		{
			name:    "unknown log level",
			file:    "c.yaml",
			content: "logging:\n  level: loud\n",
			field:   "Level",
		},
		{
			name:    "no attempts",
			file:    "c.yaml",
			content: "teardown:\n  max-attempts: 0\n",
			field:   "MaxAttempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSQLitePath(t *testing.T) {
	tests := map[string]string{
		"sqlite:////var/lib/nfv.db": "/var/lib/nfv.db",
		"sqlite:///nfv.db":          "nfv.db",
		"sqlite:///":                ":memory:",
		"/plain/path.db":            "/plain/path.db",
	}
	for in, want := range tests {
		if got := sqlitePath(in); got != want {
			t.Errorf("sqlitePath(%q) = %q, want %q", in, got, want)
		}
	}
}
