package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentRequest is the resource request an experimenter submits.
type DeploymentRequest struct {
	Properties RequestProperties `yaml:"properties" json:"properties"`
}

// RequestProperties carries the fields of a deployment request.
type RequestProperties struct {
	// ResourceID names a catalog entry or an uploaded package.
	ResourceID string `yaml:"resource_id" json:"resource_id" validate:"required"`

	// FileName references a package uploaded by the owner, e.g. "Files/my.csar".
	FileName string `yaml:"file_name,omitempty" json:"file_name,omitempty"`

	SSHPubKey string `yaml:"ssh_pub_key,omitempty" json:"ssh_pub_key,omitempty"`

	// Testbeds places units on sites. The key "ANY" broadcasts every unit
	// to every named site.
	Testbeds TestbedMap `yaml:"testbeds,omitempty" json:"testbeds,omitempty"`

	// MonitoringIP is the externally reachable monitoring address, if any.
	MonitoringIP string `yaml:"monitoring_ip,omitempty" json:"monitoring_ip,omitempty"`
}

// ParseRequest decodes a YAML or JSON request payload.
func ParseRequest(payload []byte) (*DeploymentRequest, error) {
	var req DeploymentRequest
	var err error
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &req)
	} else {
		err = yaml.Unmarshal(payload, &req)
	}
	if err != nil {
		return nil, NewValidationError("malformed request", err)
	}
	return &req, nil
}

// TestbedMap maps a unit name (or "ANY") to one or more site names.
// Values may be written either as a single string or as a list.
type TestbedMap map[string][]string

// UnmarshalYAML accepts scalar and sequence values.
func (m *TestbedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("testbeds must be a mapping, got line %d", node.Line)
	}
	out := make(TestbedMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			out[key.Value] = []string{value.Value}
		case yaml.SequenceNode:
			var sites []string
			if err := value.Decode(&sites); err != nil {
				return fmt.Errorf("testbed %s: %w", key.Value, err)
			}
			out[key.Value] = sites
		default:
			return fmt.Errorf("testbed %s must be a string or a list", key.Value)
		}
	}
	*m = out
	return nil
}

// UnmarshalJSON accepts string and array values.
func (m *TestbedMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(TestbedMap, len(raw))
	for key, value := range raw {
		var site string
		if err := json.Unmarshal(value, &site); err == nil {
			out[key] = []string{site}
			continue
		}
		var sites []string
		if err := json.Unmarshal(value, &sites); err != nil {
			return fmt.Errorf("testbed %s must be a string or a list", key)
		}
		out[key] = sites
	}
	*m = out
	return nil
}

// Keys returns the map keys in sorted order.
func (m TestbedMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Wildcard reports whether the map contains the "ANY" key, in any case.
func (m TestbedMap) Wildcard() bool {
	for k := range m {
		if isWildcard(k) {
			return true
		}
	}
	return false
}

// Sites returns every site named in the map, without duplicates. Keys are
// visited in sorted order and sites in the order they were given.
func (m TestbedMap) Sites() []string {
	var sites []string
	seen := make(map[string]bool)
	for _, k := range m.Keys() {
		for _, s := range m[k] {
			if !seen[s] {
				seen[s] = true
				sites = append(sites, s)
			}
		}
	}
	return sites
}

// Node types reported by List.
const (
	NodeTypeResource = "NfvResource"
	NodeTypeImage    = "NfvImage"
	NodeTypeNetwork  = "NfvNetwork"
	NodeTypeFlavor   = "NfvFlavor"
)

// ResourceMetadata describes something an experimenter may request.
type ResourceMetadata struct {
	ResourceID  string `json:"resource_id" yaml:"resource_id"`
	Description string `json:"description" yaml:"description"`
	Cardinality int    `json:"cardinality" yaml:"cardinality"`
	NodeType    string `json:"node_type" yaml:"node_type"`
	Testbed     string `json:"testbed" yaml:"testbed"`
}

// WildcardTestbed is the placement key that broadcasts to every site.
const WildcardTestbed = "ANY"

func isWildcard(name string) bool {
	return strings.EqualFold(name, WildcardTestbed)
}

// testbeds maps lower-case testbed names to their canonical form.
var testbeds = map[string]string{
	"fokus":        "FOKUS",
	"fokus-dev":    "FOKUS_DEV",
	"ericsson":     "ERICSSON",
	"ericsson-dev": "ERICSSON_DEV",
	"surrey":       "SURREY",
	"surrey-dev":   "SURREY_DEV",
	"ads":          "ADS",
	"ads-dev":      "ADS_DEV",
	"dt":           "DT",
	"dt-dev":       "DT_DEV",
	"any":          "ANY",
}

// CanonicalTestbed maps a testbed name onto the fixed testbed table. Names
// outside the table are returned unchanged with ok set to false.
func CanonicalTestbed(name string) (string, bool) {
	canonical, ok := testbeds[strings.ToLower(name)]
	if !ok {
		return name, false
	}
	return canonical, true
}

// KnownTestbeds returns the lower-case names of the testbed table, sorted.
func KnownTestbeds() []string {
	names := make([]string, 0, len(testbeds))
	for name := range testbeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
