package optionals

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudloader/cloudinstaller/internal/models"
)

func boolPtr(b bool) *bool { return &b }

var testOptionals = []models.OptionalLibrary{
	{Name: "jei", Artifact: "mezz:jei:1.0", Maven: "https://maven.example.com/", Server: true},
	{Name: "waila", Artifact: "mcp:waila:2.0", Maven: "https://maven.example.com/", Server: true, Default: boolPtr(false)},
	{Name: "minimap", Artifact: "map:minimap:3.0", Maven: "https://maven.example.com/", Client: true},
	{Name: "invalid", Artifact: "no:maven:1.0"},
}

func TestSelectorEnabled(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		overrides map[string]bool
		query     string
		want      bool
	}{
		{"default true", "", nil, "jei", true},
		{"by artifact", "", nil, "mezz:jei:1.0", true},
		{"default false", "", nil, "waila", false},
		{"wrong side", "", nil, "minimap", false},
		{"unknown toggle", "", nil, "something", true},
		{"override enables", "", map[string]bool{"waila": true}, "waila", true},
		{"override by artifact", "", map[string]bool{"mcp:waila:2.0": true}, "waila", true},
		{"override disables", "", map[string]bool{"jei": false}, "mezz:jei:1.0", false},
		{"override unknown", "", map[string]bool{"something": false}, "something", false},
		{"expression ignores undeclared", `false`, nil, "com.example:core:1.0", true},
		{"expression", `name.startsWith("wa")`, nil, "waila", true},
		{"expression on artifact", `artifact.endsWith(":1.0")`, nil, "jei", true},
		{"expression sees default", `default`, nil, "waila", false},
		{"expression side", `side == "client"`, nil, "jei", false},
		{"override beats expression", `false`, map[string]bool{"jei": true}, "jei", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSelector(tt.expr, models.SideServer, testOptionals, tt.overrides)
			if err != nil {
				t.Fatalf("NewSelector() error = %v", err)
			}
			if got := s.Enabled(tt.query); got != tt.want {
				t.Errorf("Enabled(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestNewSelectorInvalidExpression(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax", `name ==`},
		{"unknown variable", `version == "1"`},
		{"not bool", `name`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSelector(tt.expr, models.SideServer, nil, nil); err == nil {
				t.Errorf("NewSelector(%q) expected error", tt.expr)
			}
		})
	}
}

func TestSelectorNames(t *testing.T) {
	s, err := NewSelector("", models.SideServer, testOptionals, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(s.Names(), ",")
	if got != "jei,minimap,waila" {
		t.Errorf("Names() = %s", got)
	}
}

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides([]string{"jei=false", "waila", " map = true "})
	if err != nil {
		t.Fatalf("ParseOverrides() error = %v", err)
	}
	if got["jei"] || !got["waila"] || !got["map"] {
		t.Errorf("ParseOverrides() = %v", got)
	}

	for _, bad := range []string{"=true", "jei=maybe"} {
		if _, err := ParseOverrides([]string{bad}); err == nil {
			t.Errorf("ParseOverrides(%q) expected error", bad)
		}
	}
}

func TestSaveModList(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ModListPath)
	s, err := NewSelector("", models.SideServer, testOptionals, nil)
	if err != nil {
		t.Fatal(err)
	}

	n, err := SaveModList(filepath.Join(root, "libraries"), path, testOptionals, s.Enabled)
	if err != nil {
		t.Fatalf("SaveModList() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SaveModList() = %d, want 1", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var list ModList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("mod list is not JSON: %v", err)
	}
	if len(list.ModRef) != 1 || list.ModRef[0] != "mezz:jei:1.0" {
		t.Errorf("modRef = %q", list.ModRef)
	}
	if !strings.HasSuffix(list.RepositoryRoot, "/libraries") || strings.Contains(list.RepositoryRoot, `\`) {
		t.Errorf("repositoryRoot = %q", list.RepositoryRoot)
	}
}

func TestSaveModListNothingEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), ModListPath)
	n, err := SaveModList(t.TempDir(), path, testOptionals, func(string) bool { return false })
	if err != nil || n != 0 {
		t.Fatalf("SaveModList() = %d, %v", n, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written when nothing is enabled")
	}
}
