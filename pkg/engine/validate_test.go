package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/softfire/nfv-manager/pkg/policy"
)

func TestPlacement(t *testing.T) {
	tests := []struct {
		name     string
		units    []string
		testbeds TestbedMap
		want     map[string][]string
	}{
		{
			name:     "wildcard broadcasts to every site",
			units:    []string{"u1", "u2"},
			testbeds: TestbedMap{"ANY": {"s1", "s2"}},
			want: map[string][]string{
				"u1": {"vim-instance-s1", "vim-instance-s2"},
				"u2": {"vim-instance-s1", "vim-instance-s2"},
			},
		},
		{
			name:     "wildcard is case-insensitive",
			units:    []string{"u1"},
			testbeds: TestbedMap{"any": {"s1"}},
			want:     map[string][]string{"u1": {"vim-instance-s1"}},
		},
		{
			name:     "explicit placement",
			units:    []string{"u1"},
			testbeds: TestbedMap{"u1": {"s1"}},
			want:     map[string][]string{"u1": {"vim-instance-s1"}},
		},
		{
			name:     "explicit placement on two sites",
			units:    []string{"u1", "u2"},
			testbeds: TestbedMap{"u1": {"s1", "s2"}, "u2": {"s2"}},
			want: map[string][]string{
				"u1": {"vim-instance-s1", "vim-instance-s2"},
				"u2": {"vim-instance-s2"},
			},
		},
		{
			name:     "unknown units are ignored, unplaced units stay empty",
			units:    []string{"u1", "u2"},
			testbeds: TestbedMap{"u1": {"s1"}, "u9": {"s9"}},
			want: map[string][]string{
				"u1": {"vim-instance-s1"},
				"u2": {},
			},
		},
		{
			name:  "no units",
			units: nil,
			want:  map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Placement(tt.units, tt.testbeds)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d units, got %v", len(tt.want), got)
			}
			for unit, want := range tt.want {
				bindings, ok := got[unit]
				if !ok {
					t.Errorf("Missing unit %s", unit)
					continue
				}
				if strings.Join(bindings, ",") != strings.Join(want, ",") {
					t.Errorf("Unit %s: expected %v, got %v", unit, want, bindings)
				}
			}
		})
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		sites   map[string]string
	}{
		{
			name: "yaml with scalar and list",
			payload: `
properties:
  resource_id: open5gcore
  testbeds:
    mme: fokus
    hss: [fokus, surrey]
`,
			sites: map[string]string{"mme": "fokus", "hss": "fokus,surrey"},
		},
		{
			name:    "json with scalar and list",
			payload: `{"properties": {"resource_id": "open5gcore", "testbeds": {"mme": "fokus", "hss": ["fokus", "surrey"]}}}`,
			sites:   map[string]string{"mme": "fokus", "hss": "fokus,surrey"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseRequest failed: %v", err)
			}
			if req.Properties.ResourceID != "open5gcore" {
				t.Errorf("Unexpected resource id: %q", req.Properties.ResourceID)
			}
			for unit, want := range tt.sites {
				if got := strings.Join(req.Properties.Testbeds[unit], ","); got != want {
					t.Errorf("Unit %s: expected %s, got %s", unit, want, got)
				}
			}
		})
	}

	if _, err := ParseRequest([]byte("properties: [")); !IsValidation(err) {
		t.Errorf("Expected validation error for a broken payload, got %v", err)
	}
	if _, err := ParseRequest([]byte("properties:\n  testbeds:\n    mme: {a: b}\n")); err == nil {
		t.Error("Expected error for a nested testbed value")
	}
}

func TestTestbedMapSites(t *testing.T) {
	m := TestbedMap{"b": {"s2", "s1"}, "a": {"s1", "s3"}}
	if got := strings.Join(m.Sites(), ","); got != "s1,s3,s2" {
		t.Errorf("Unexpected sites: %s", got)
	}
	if m.Wildcard() {
		t.Error("Expected no wildcard")
	}
}

func TestCanonicalTestbed(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"fokus", "FOKUS", true},
		{"FOKUS-dev", "FOKUS_DEV", true},
		{"any", "ANY", true},
		{"mars", "mars", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalTestbed(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalTestbed(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValidate(t *testing.T) {
	pe, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create policy engine: %v", err)
	}
	h := newHarness(t, func(o *Options) { o.Policies = pe })
	h.writeFile(t, "alice/uploaded.csar")

	tests := []struct {
		name     string
		props    RequestProperties
		wantCode string
	}{
		{
			name:  "catalog entry",
			props: RequestProperties{ResourceID: "open5gcore", Testbeds: TestbedMap{"mme": {"fokus"}}},
		},
		{
			name:  "catalog entry with lower-case wildcard",
			props: RequestProperties{ResourceID: "open5gcore", Testbeds: TestbedMap{"any": {"fokus"}}},
		},
		{
			name:  "unknown id with file reference",
			props: RequestProperties{ResourceID: "mine", FileName: "Files/mine.csar"},
		},
		{
			name:  "unknown id with uploaded archive",
			props: RequestProperties{ResourceID: "uploaded"},
		},
		{
			name:  "valid public key",
			props: RequestProperties{ResourceID: "open5gcore", SSHPubKey: testPubKey},
		},
		{
			name:     "missing resource id",
			props:    RequestProperties{},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "unknown id without package",
			props:    RequestProperties{ResourceID: "mine"},
			wantCode: ErrCodeUnknownResource,
		},
		{
			name:     "testbed key is not a unit",
			props:    RequestProperties{ResourceID: "open5gcore", Testbeds: TestbedMap{"bt": {"fokus"}}},
			wantCode: ErrCodeUnknownTestbed,
		},
		{
			name:     "broken public key",
			props:    RequestProperties{ResourceID: "open5gcore", SSHPubKey: "ssh-rsa not-a-key"},
			wantCode: ErrCodeInvalidKey,
		},
		{
			name:     "path traversal in file reference",
			props:    RequestProperties{ResourceID: "mine", FileName: "../../etc/passwd"},
			wantCode: ErrCodePolicyDenied,
		},
		{
			name:     "path traversal in resource id",
			props:    RequestProperties{ResourceID: "../bob", FileName: "Files/x.csar"},
			wantCode: ErrCodePolicyDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.mgr.Validate(context.Background(), "alice", &DeploymentRequest{Properties: tt.props})
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Expected request to be valid, got %v", err)
				}
				return
			}
			var engErr *EngineError
			if !errors.As(err, &engErr) {
				t.Fatalf("Expected an engine error, got %v", err)
			}
			if engErr.Class != ErrorClassValidation || engErr.Code != tt.wantCode {
				t.Errorf("Expected %s/%s, got %s/%s (%v)", ErrorClassValidation, tt.wantCode, engErr.Class, engErr.Code, err)
			}
		})
	}

	if len(h.fake.Calls()) != 0 {
		t.Errorf("Expected validation to make no orchestrator calls, got %v", h.fake.Calls())
	}
}

// TestValidate_WithoutPolicies tests that a manager without an admission
// engine applies only the structural checks. Archive confinement is left to
// Provide.
func TestValidate_WithoutPolicies(t *testing.T) {
	h := newHarness(t)

	req := &DeploymentRequest{Properties: RequestProperties{ResourceID: "mine", FileName: "../../etc/passwd"}}
	if err := h.mgr.Validate(context.Background(), "alice", req); err != nil {
		t.Errorf("Expected no policy to run, got %v", err)
	}

	req = &DeploymentRequest{Properties: RequestProperties{ResourceID: "open5gcore", Testbeds: TestbedMap{"bt": {"fokus"}}}}
	if err := h.mgr.Validate(context.Background(), "alice", req); !IsValidation(err) {
		t.Errorf("Expected structural checks to run, got %v", err)
	}

	_, err := h.mgr.Provide(context.Background(), "alice", &DeploymentRequest{
		Properties: RequestProperties{ResourceID: "mine", FileName: "../../etc/passwd"},
	})
	if !IsMissingResource(err) {
		t.Errorf("Expected Provide to reject the reference, got %v", err)
	}
}

func TestEngineError(t *testing.T) {
	cause := errors.New("boom")
	err := NewDeleteError("failed to delete record", cause).WithResource("nsr-1").WithOperation("delete_nsr")

	if got := err.Error(); got != "[delete] failed to delete record (resource=nsr-1, operation=delete_nsr): boom" {
		t.Errorf("Unexpected message: %s", got)
	}
	if got := NewValidationError("bad", nil).Error(); got != "[validation] bad" {
		t.Errorf("Unexpected message without cause: %s", got)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause in the chain")
	}
	if !errors.Is(err, &EngineError{Class: ErrorClassDelete}) {
		t.Error("Expected class match")
	}
	if !IsDelete(err) || IsTransient(err) || IsValidation(err) {
		t.Error("Unexpected classification")
	}
	if ClassOf(cause) != "unclassified" || ClassOf(err) != "delete" {
		t.Error("Unexpected ClassOf result")
	}
}
