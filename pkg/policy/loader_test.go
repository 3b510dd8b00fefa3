package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const denyOwnerRego = `# Reject requests from a blocked owner.
package softfire.test.owner

import rego.v1

deny contains msg if {
	input.request.owner == "blocked"
	msg := "owner is blocked"
}
`

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	policyFile := filepath.Join(t.TempDir(), "blocked-owner.rego")
	if err := os.WriteFile(policyFile, []byte(denyOwnerRego), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policies, err := loader.loadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "blocked-owner" {
		t.Errorf("Expected name 'blocked-owner', got '%s'", p.Name)
	}
	if p.Description != "Reject requests from a blocked owner." {
		t.Errorf("Unexpected description: %q", p.Description)
	}
	if p.Severity != SeverityError || !p.Enabled {
		t.Errorf("Expected enabled error policy, got %s enabled=%v", p.Severity, p.Enabled)
	}
	if p.Source != policyFile {
		t.Errorf("Expected source %s, got %s", policyFile, p.Source)
	}
}

func TestLoadFromFile_Bundle(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	bundle := Bundle{
		Name:    "testbed-rules",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "one", Rego: "package one\n", Enabled: true},
			{Name: "two", Rego: "package two\n", Enabled: true, Severity: SeverityWarning},
		},
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("Failed to marshal bundle: %v", err)
	}
	bundleFile := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(bundleFile, data, 0644); err != nil {
		t.Fatalf("Failed to write bundle: %v", err)
	}

	policies, err := loader.loadFile(bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Severity != SeverityError {
		t.Errorf("Expected default severity error, got %s", policies[0].Severity)
	}
	if policies[1].Severity != SeverityWarning {
		t.Errorf("Expected explicit severity to survive, got %s", policies[1].Severity)
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	root := t.TempDir()
	nested := filepath.Join(root, "site", "fokus")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create dirs: %v", err)
	}
	files := map[string]string{
		filepath.Join(root, "a.rego"):   denyOwnerRego,
		filepath.Join(nested, "b.rego"): denyOwnerRego,
		filepath.Join(root, "notes.txt"): "ignored",
		filepath.Join(root, "bad.json"):  "{not json",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{root})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies (bad files skipped), got %d", len(policies))
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/policies"}); err == nil {
		t.Error("Expected error for nonexistent path")
	}
}

func TestEngineLoadPolicies(t *testing.T) {
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocked-owner.rego"), []byte(denyOwnerRego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), &Input{
		Request: &RequestInput{ResourceID: "open5gcore", Owner: "blocked"},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected loaded policy to deny the request")
	}
}

func TestWatchReloads(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 1)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		select {
		case reloaded <- p:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "blocked-owner.rego"), []byte(denyOwnerRego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	select {
	case policies := <-reloaded:
		if len(policies) != 1 || policies[0].Name != "blocked-owner" {
			t.Errorf("Unexpected reloaded policies: %+v", policies)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{name: "single line", content: "# One line\npackage x", expected: "One line"},
		{name: "multi line", content: "# First\n# Second\n\npackage x", expected: "First Second"},
		{name: "none", content: "package x\n", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDescription(tt.content); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestWatchRetractsRemovedPolicy(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	path := filepath.Join(dir, "blocked-owner.rego")
	if err := os.WriteFile(path, []byte(denyOwnerRego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 1)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		select {
		case reloaded <- p:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove policy: %v", err)
	}

	select {
	case policies := <-reloaded:
		if len(policies) != 0 {
			t.Errorf("Expected no policies after removal, got %+v", policies)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}
