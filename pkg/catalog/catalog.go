// Package catalog holds the operator-curated set of network services that
// every experimenter may deploy, and resolves where their packages live on
// disk.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Entry describes one deployable network service.
type Entry struct {
	Description string   `json:"description" yaml:"description"`
	Cardinality int      `json:"cardinality" yaml:"cardinality"`
	NodeType    string   `json:"node_type" yaml:"node_type"`
	Testbed     string   `json:"testbed" yaml:"testbed"`
	VNFTypes    []string `json:"vnf_types" yaml:"vnf_types"`
}

// HasUnitType reports whether name is one of the entry's unit types.
func (e Entry) HasUnitType(name string) bool {
	for _, t := range e.VNFTypes {
		if t == name {
			return true
		}
	}
	return false
}

// schema constrains catalog files. Missing optional fields take the
// defaults declared here.
const schema = `
#Entry: {
	description: string | *""
	cardinality: int | *-1
	node_type:   string | *"NfvResource"
	testbed:     string | *"ANY"
	vnf_types:   [...string] | *[]
	...
}

#Catalog: [string]: #Entry
`

// Catalog is a concurrency-safe view of the catalog file. Reload swaps the
// whole entry set at once.
type Catalog struct {
	path string

	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an in-memory catalog holding entries.
func New(entries map[string]Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for id, e := range entries {
		c.entries[id] = e
	}
	return c
}

// Load reads and validates the catalog file at path. The file may be JSON
// or YAML.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file the catalog was loaded from.
func (c *Catalog) Path() string {
	return c.path
}

// Reload re-reads the catalog file. On error the current entries are kept.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", c.path, err)
	}

	entries, err := Parse(data)
	if err != nil {
		return fmt.Errorf("catalog %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Parse decodes and validates catalog data.
func Parse(data []byte) (map[string]Entry, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if raw == nil {
		return map[string]Entry{}, nil
	}

	ctx := cuecontext.New()
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Catalog"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}

	value := def.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid catalog: %s", formatCUEError(err))
	}

	entries := make(map[string]Entry)
	if err := value.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return entries, nil
}

func formatCUEError(err error) string {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Get returns the entry for a resource id.
func (c *Catalog) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// IDs returns every resource id in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
