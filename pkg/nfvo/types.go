package nfvo

import (
	"encoding/json"
	"fmt"
)

// Project is an NFVO tenant. Each experimenter owns one, named after them.
type Project struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Role binds a user to a project.
type Role struct {
	Role    string `json:"role"`
	Project string `json:"project"`
}

// User is an NFVO user account.
type User struct {
	ID       string  `json:"id,omitempty"`
	Username string  `json:"username"`
	Password string  `json:"password,omitempty"`
	Enabled  bool    `json:"enabled"`
	Email    *string `json:"email"`
	Roles    []Role  `json:"roles,omitempty"`
}

// Image is a VM image available on a vim instance.
type Image struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Network is a network available on a vim instance.
type Network struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Flavour is a VM flavour available on a vim instance.
type Flavour struct {
	ID         string `json:"id,omitempty"`
	FlavourKey string `json:"flavour_key"`
}

// VimInstance is a binding from the NFVO to one testbed tenant.
type VimInstance struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	AuthURL   string    `json:"authUrl,omitempty"`
	Tenant    string    `json:"tenant,omitempty"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"`
	KeyPair   string    `json:"keyPair,omitempty"`
	Type      string    `json:"type,omitempty"`
	Images    []Image   `json:"images,omitempty"`
	Networks  []Network `json:"networks,omitempty"`
	Flavours  []Flavour `json:"flavours,omitempty"`
}

// Key is an SSH public key registered in a project.
type Key struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	PublicKey string `json:"publicKey"`
}

// VNFCInstance is one running instance of a deployment unit.
type VNFCInstance struct {
	ID       string `json:"id,omitempty"`
	Hostname string `json:"hostname"`
}

// VDU is a deployment unit inside a component descriptor or record.
type VDU struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	VNFCInstance []VNFCInstance `json:"vnfc_instance,omitempty"`
}

// VNFD is a component descriptor.
type VNFD struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	VDU  []VDU  `json:"vdu,omitempty"`
}

// VirtualLink names a network link shared by the components of a service.
type VirtualLink struct {
	Name string `json:"name"`
}

// NSD is a network-service descriptor.
type NSD struct {
	ID      string        `json:"id,omitempty"`
	Name    string        `json:"name"`
	Version string        `json:"version,omitempty"`
	Vendor  string        `json:"vendor,omitempty"`
	VNFD    []VNFD        `json:"vnfd"`
	VLD     []VirtualLink `json:"vld,omitempty"`
}

// UnitNames returns the names of every deployment unit declared by the
// descriptor's components, in declaration order.
func (n *NSD) UnitNames() []string {
	var names []string
	for _, vnfd := range n.VNFD {
		for _, vdu := range vnfd.VDU {
			names = append(names, vdu.Name)
		}
	}
	return names
}

// VNFR is a component record inside an NSR.
type VNFR struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	VDU  []VDU  `json:"vdu,omitempty"`
}

// NSR is a network-service record: a running instance of an NSD.
type NSR struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Status              string `json:"status"`
	DescriptorReference string `json:"descriptor_reference"`
	VNFR                []VNFR `json:"vnfr"`

	// Raw is the record exactly as the orchestrator returned it.
	Raw json.RawMessage `json:"-"`
}

// ParseNSR decodes an orchestrator NSR payload, keeping the raw bytes.
// A payload that decodes to an error document is reported as an *APIError.
func ParseNSR(data []byte) (*NSR, error) {
	var probe struct {
		ID      string `json:"id"`
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if probe.ID == "" && (probe.Error != "" || probe.Message != "") {
		msg := probe.Error
		if msg == "" {
			msg = probe.Message
		}
		return nil, &APIError{StatusCode: probe.Code, Message: msg}
	}

	var nsr NSR
	if err := json.Unmarshal(data, &nsr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if nsr.ID == "" {
		return nil, fmt.Errorf("%w: record without id", ErrMalformedResponse)
	}
	nsr.Raw = append(json.RawMessage(nil), data...)
	return &nsr, nil
}

// Serialize returns the record as the orchestrator reported it, or its JSON
// encoding when it was not decoded from a response.
func (n *NSR) Serialize() string {
	if len(n.Raw) > 0 {
		return string(n.Raw)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogLocations collects the hostnames of every component instance, keyed by
// component name. Hostnames accumulate per instance.
func (n *NSR) LogLocations() map[string][]string {
	locations := make(map[string][]string)
	for _, vnfr := range n.VNFR {
		for _, vdu := range vnfr.VDU {
			for _, vnfc := range vdu.VNFCInstance {
				locations[vnfr.Name] = append(locations[vnfr.Name], vnfc.Hostname)
			}
		}
	}
	return locations
}

// NSRBody is the deployment request sent when creating an NSR.
type NSRBody struct {
	VDUVimInstances map[string][]string `json:"vduVimInstances"`
	Keys            []string            `json:"keys"`
	MonitoringIP    string              `json:"monitoringIp"`
}

// Resource kinds exposed by vim instances.
const (
	ResourceImage   = "image"
	ResourceNetwork = "network"
	ResourceFlavor  = "flavor"
)

// VimResource is an image, network or flavour seen on a testbed.
type VimResource struct {
	Kind    string
	Testbed string
	Name    string
}
