package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"known-testbeds", "package-path", "resource-id"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Expected policy %d to be %s, got %s", i, name, policies[i].Name)
		}
	}
}

// TestEvaluate_Builtins tests the built-in admission rules
func TestEvaluate_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name          string
		request       *RequestInput
		known         []string
		expectAllowed bool
		expectWarning bool
	}{
		{
			name:          "catalog request",
			request:       &RequestInput{ResourceID: "open5gcore", Owner: "alice", Catalog: true},
			expectAllowed: true,
		},
		{
			name:          "empty resource id",
			request:       &RequestInput{Owner: "alice"},
			expectAllowed: false,
		},
		{
			name:          "path traversal in resource id",
			request:       &RequestInput{ResourceID: "a..b", Owner: "alice"},
			expectAllowed: false,
		},
		{
			name:          "slash in resource id",
			request:       &RequestInput{ResourceID: "a/b", Owner: "alice"},
			expectAllowed: false,
		},
		{
			name:          "absolute file name",
			request:       &RequestInput{ResourceID: "mine", FileName: "/etc/passwd"},
			expectAllowed: false,
		},
		{
			name:          "relative file name",
			request:       &RequestInput{ResourceID: "mine", FileName: "Files/mine.csar"},
			expectAllowed: true,
		},
		{
			name: "unknown testbed warns",
			request: &RequestInput{
				ResourceID: "open5gcore",
				Testbeds:   map[string][]string{"open5gcore": {"mars"}},
			},
			known:         []string{"fokus", "surrey"},
			expectAllowed: true,
			expectWarning: true,
		},
		{
			name: "known testbed",
			request: &RequestInput{
				ResourceID: "open5gcore",
				Testbeds:   map[string][]string{"open5gcore": {"FOKUS"}},
			},
			known:         []string{"fokus", "surrey"},
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Request: tt.request,
				Context: &Context{Operation: "validate", KnownTestbeds: tt.known},
			}
			result, err := eng.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v (violations: %v)", tt.expectAllowed, result.Allowed, result.Messages())
			}
			if (len(result.Warnings) > 0) != tt.expectWarning {
				t.Errorf("Expected warning=%v, got %v", tt.expectWarning, result.Warnings)
			}
		})
	}
}

func TestApply_CustomPolicy(t *testing.T) {
	eng := newTestEngine(t)

	custom := Policy{
		Name:     "no-bob",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package softfire.custom.owners

import rego.v1

deny contains msg if {
	input.request.owner == "bob"
	msg := "bob may not deploy"
}
`,
	}
	if err := eng.Apply(context.Background(), []Policy{custom}); err != nil {
		t.Fatalf("Failed to apply policy: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), &Input{
		Request: &RequestInput{ResourceID: "open5gcore", Owner: "bob"},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected request to be denied")
	}
	if msgs := result.Messages(); len(msgs) != 1 || msgs[0] != "no-bob: bob may not deploy" {
		t.Errorf("Unexpected messages: %v", msgs)
	}
}

func TestApply_InvalidPolicyKeepsPrevious(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.Apply(context.Background(), []Policy{
		{Name: "good", Enabled: true, Severity: SeverityError, Rego: "package good\n\nimport rego.v1\n\ndeny contains \"x\" if { false }\n"},
		{Name: "broken", Enabled: true, Rego: "package broken\n\ndeny contains if {"},
	})
	if err == nil {
		t.Fatal("Expected compile error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("Expected error to name the broken policy, got %v", err)
	}
	if _, err := eng.GetPolicy("good"); err == nil {
		t.Error("Expected no policy to be installed after a failed apply")
	}
	if len(eng.ListPolicies()) != 3 {
		t.Errorf("Expected built-ins to survive, got %d policies", len(eng.ListPolicies()))
	}
}

func TestSetEnabled(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.SetEnabled("resource-id", false); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), &Input{Request: &RequestInput{}})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected empty id to pass with resource-id disabled, got %v", result.Messages())
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "resource-id" {
			t.Error("Disabled policy was evaluated")
		}
	}

	if err := eng.SetEnabled("missing", true); err == nil {
		t.Error("Expected error for unknown policy")
	}
}
