package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but does not block a request.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the request.
	SeverityError Severity = "error"

	// SeverityCritical blocks the request.
	SeverityCritical Severity = "critical"
)

// blocks reports whether a violation of this severity rejects the request.
func (s Severity) blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is an admission rule written in Rego. Every policy exposes a
// "deny" set in its package; each element is one violation.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`

	LoadedAt time.Time `json:"loaded_at"`
}

// Violation is one element of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any violation blocks the request.
	Allowed bool `json:"allowed"`

	// Violations are the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are violations that do not block.
	Warnings []Violation `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Messages returns the messages of the blocking violations.
func (r *Result) Messages() []string {
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.Policy+": "+v.Message)
	}
	return msgs
}

// Input is the document policies see as "input".
type Input struct {
	Request *RequestInput `json:"request"`
	Context *Context      `json:"context"`
}

// RequestInput describes the deployment request under admission.
type RequestInput struct {
	ResourceID   string              `json:"resource_id"`
	Owner        string              `json:"owner"`
	Catalog      bool                `json:"catalog"`
	UnitTypes    []string            `json:"unit_types,omitempty"`
	Testbeds     map[string][]string `json:"testbeds,omitempty"`
	FileName     string              `json:"file_name,omitempty"`
	HasPublicKey bool                `json:"has_public_key"`
	MonitoringIP string              `json:"monitoring_ip,omitempty"`
}

// Context carries evaluation metadata.
type Context struct {
	Operation     string    `json:"operation"`
	Timestamp     time.Time `json:"timestamp"`
	KnownTestbeds []string  `json:"known_testbeds,omitempty"`
}

// Bundle is a named collection of policies shipped as one JSON file.
type Bundle struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Policies    []Policy `json:"policies"`
}
