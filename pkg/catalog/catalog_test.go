package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const catalogJSON = `{
  "open5gcore": {
    "description": "Open5GCore with all components",
    "cardinality": 1,
    "node_type": "NfvResource",
    "testbed": "ANY",
    "vnf_types": ["mme", "hss", "gw"]
  },
  "bt": {
    "vnf_types": ["bt"]
  }
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "available-nsds.json")
	writeFile(t, path, catalogJSON)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	if got := strings.Join(c.IDs(), ","); got != "bt,open5gcore" {
		t.Errorf("Unexpected ids: %s", got)
	}

	core, ok := c.Get("open5gcore")
	if !ok {
		t.Fatal("Expected open5gcore entry")
	}
	if core.Cardinality != 1 || core.Description != "Open5GCore with all components" {
		t.Errorf("Unexpected entry: %+v", core)
	}
	if !core.HasUnitType("hss") || core.HasUnitType("bt") {
		t.Errorf("Unexpected unit types: %v", core.VNFTypes)
	}
}

// TestLoad_Defaults tests that omitted fields take the schema defaults
func TestLoad_Defaults(t *testing.T) {
	entries, err := Parse([]byte(catalogJSON))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	bt := entries["bt"]
	if bt.Cardinality != -1 {
		t.Errorf("Expected default cardinality -1, got %d", bt.Cardinality)
	}
	if bt.NodeType != "NfvResource" {
		t.Errorf("Expected default node type, got %q", bt.NodeType)
	}
	if bt.Testbed != "ANY" {
		t.Errorf("Expected default testbed ANY, got %q", bt.Testbed)
	}
}

func TestParse_YAML(t *testing.T) {
	entries, err := Parse([]byte(`
monitoring:
  description: Zabbix server
  testbed: fokus
  vnf_types: [zabbix]
`))
	if err != nil {
		t.Fatalf("Failed to parse YAML: %v", err)
	}
	if entries["monitoring"].Testbed != "fokus" {
		t.Errorf("Unexpected entry: %+v", entries["monitoring"])
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not a document", content: "{oops"},
		{name: "cardinality not a number", content: `{"x": {"cardinality": "many", "vnf_types": []}}`},
		{name: "vnf types not strings", content: `{"x": {"vnf_types": [1, 2]}}`},
		{name: "entry not an object", content: `{"x": "y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestReload_KeepsEntriesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "available-nsds.json")
	writeFile(t, path, catalogJSON)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	writeFile(t, path, `{"x": {"cardinality": "many"}}`)
	if err := c.Reload(); err == nil {
		t.Fatal("Expected reload error")
	}
	if c.Len() != 2 {
		t.Errorf("Expected previous entries to be kept, got %d", c.Len())
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "available-nsds.json")
	writeFile(t, path, catalogJSON)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan int, 1)
	if err := c.Watch(ctx, zerolog.Nop(), func(n int) {
		select {
		case reloaded <- n:
		default:
		}
	}); err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	writeFile(t, path, `{"bt": {"vnf_types": ["bt"]}}`)

	select {
	case n := <-reloaded:
		if n != 1 {
			t.Errorf("Expected 1 entry after reload, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
	if _, ok := c.Get("open5gcore"); ok {
		t.Error("Expected open5gcore to be gone after reload")
	}
}

func TestPackages(t *testing.T) {
	root := t.TempDir()
	p := Packages{Root: root}

	writeFile(t, filepath.Join(root, "open5gcore", "mme.tar"), "x")
	writeFile(t, filepath.Join(root, "open5gcore", "hss.tar"), "x")
	if err := os.MkdirAll(filepath.Join(root, "open5gcore", "nested"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	writeFile(t, filepath.Join(root, "alice", "mine.csar"), "x")

	dir, ok := p.CatalogDir("open5gcore")
	if !ok || dir != filepath.Join(root, "open5gcore") {
		t.Errorf("Expected catalog dir to exist, got %s %v", dir, ok)
	}
	if _, ok := p.CatalogDir("bt"); ok {
		t.Error("Expected missing catalog dir")
	}

	files, err := p.CatalogFiles("open5gcore")
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "hss.tar" || filepath.Base(files[1]) != "mme.tar" {
		t.Errorf("Unexpected files: %v", files)
	}

	if got, ok := p.UserArchive("alice", "Files/mine.csar"); !ok || got != filepath.Join(root, "alice", "mine.csar") {
		t.Errorf("Unexpected archive path: %s (ok=%v)", got, ok)
	}
	if !p.HasUploadedArchive("alice", "mine") {
		t.Error("Expected uploaded archive to be found")
	}
	if p.HasUploadedArchive("bob", "mine") {
		t.Error("Expected no archive for bob")
	}
}

func TestUserArchiveStaysInOwnerDirectory(t *testing.T) {
	p := Packages{Root: t.TempDir()}

	tests := []struct {
		name   string
		owner  string
		file   string
		wantOK bool
	}{
		{"plain", "alice", "mine.csar", true},
		{"files prefix", "alice", "Files/mine.csar", true},
		{"nested", "alice", "Files/sub/mine.csar", true},
		{"dot segments inside", "alice", "sub/../mine.csar", true},
		{"other owner", "alice", "../bob/secret.csar", false},
		{"other owner after prefix", "alice", "Files/../../bob/secret.csar", false},
		{"root escape", "alice", "../../etc/passwd", false},
		{"owner directory itself", "alice", "Files/", false},
		{"owner escapes root", "..", "mine.csar", false},
		{"empty owner", "", "bob/secret.csar", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := p.UserArchive(tt.owner, tt.file); ok != tt.wantOK {
				t.Errorf("UserArchive(%q, %q) ok = %v, want %v", tt.owner, tt.file, ok, tt.wantOK)
			}
		})
	}
}
