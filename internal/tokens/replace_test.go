package tokens

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReplace(t *testing.T) {
	values := map[string]string{
		"VERSION": "1.17",
		"NAME":    "Foo",
		"ROOT":    "/srv/install",
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "single token", input: "{VERSION}", want: "1.17"},
		{name: "other token", input: "{NAME}", want: "Foo"},
		{name: "adjacent tokens", input: "{NAME}-{VERSION}", want: "Foo-1.17"},
		{name: "path", input: "{NAME}/{VERSION}/something", want: "Foo/1.17/something"},
		{name: "quoted token is literal", input: "'{VERSION}'", want: "{VERSION}"},
		{name: "quoted text", input: "'test'", want: "test"},
		{name: "escaped quotes", input: `This is a \'test\'`, want: "This is a 'test'"},
		{name: "no tokens", input: "--flag", want: "--flag"},
		{name: "empty", input: "", want: ""},
		{name: "quoted unknown key", input: "'{MISSING}'", want: "{MISSING}"},
		{name: "escape inside quotes", input: `'it\'s'`, want: "it's"},
		{name: "root output", input: "{ROOT}/out.txt", want: "/srv/install/out.txt"},
		{name: "trailing backslash", input: `a\`, want: `a\`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Replace(values, tt.input)
			if err != nil {
				t.Fatalf("Replace(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Replace(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// An unmatched '}' is copied while an unmatched '{' fails. This asymmetry is kept
// on purpose for compatibility with published install profiles.
func TestReplaceBraceAsymmetryQuirk(t *testing.T) {
	values := map[string]string{"K": "V", "VERSION": "1.17"}

	got, err := Replace(values, "{K}}")
	if err != nil {
		t.Fatalf("Replace({K}}) unexpected error: %v", err)
	}
	if got != "V}" {
		t.Errorf("Replace({K}}) = %q, want %q", got, "V}")
	}

	got, err = Replace(values, "{VERSION}}")
	if err != nil || got != "1.17}" {
		t.Errorf("Replace({VERSION}}) = %q, %v; want 1.17}", got, err)
	}

	for _, in := range []string{"{{K}", "{{VERSION}", "{K", "prefix {", "'unclosed"} {
		if _, err := Replace(values, in); !errors.Is(err, ErrUnbalancedToken) {
			t.Errorf("Replace(%q) error = %v, want ErrUnbalancedToken", in, err)
		}
	}
}

func TestReplaceUnknownToken(t *testing.T) {
	_, err := Replace(map[string]string{}, "{ROOT}/x")
	if !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	var ute *UnknownTokenError
	if !errors.As(err, &ute) || ute.Key != "ROOT" {
		t.Errorf("expected UnknownTokenError for ROOT, got %v", err)
	}
}

func TestReplaceSinglePass(t *testing.T) {
	values := map[string]string{
		"A": "{B}",
		"B": "nope",
	}
	got, err := Replace(values, "{A}")
	if err != nil {
		t.Fatal(err)
	}
	if got != "{B}" {
		t.Errorf("substituted value was rescanned: got %q", got)
	}
}

func TestReplaceRoundTrip(t *testing.T) {
	values := map[string]string{
		"SIDE":        "server",
		"LIBRARY_DIR": "/lib",
		"WEIRD":       "has {braces} and 'quotes'",
	}
	for k, v := range values {
		got, err := Replace(values, "{"+k+"}")
		if err != nil {
			t.Fatalf("Replace({%s}) error: %v", k, err)
		}
		if got != v {
			t.Errorf("Replace({%s}) = %q, want %q", k, got, v)
		}
		quoted, err := Replace(values, "'{"+k+"}'")
		if err != nil || quoted != "{"+k+"}" {
			t.Errorf("Replace('{%s}') = %q, %v", k, quoted, err)
		}
	}
}

type fakeExtractor struct {
	calls   []string
	missing map[string]bool
}

func (f *fakeExtractor) ExtractFile(name, dst string) error {
	f.calls = append(f.calls, name)
	if f.missing[name] {
		return errors.New("entry not found")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(name), 0644)
}

func TestContextResolve(t *testing.T) {
	lib := t.TempDir()
	tmp := t.TempDir()
	ex := &fakeExtractor{}

	c := NewContext(map[string]string{
		"MAPPINGS": "[de.oceanlabs.mcp:mcp_config:1.17.1:mappings@txt]",
		"MC_SLIM":  "'slim-jar'",
		"BINPATCH": "/data/server.lzma",
	})
	if err := c.Resolve(context.Background(), ResolveOptions{LibraryRoot: lib, Extractor: ex, TempDir: tmp}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	c.SetFixed(Fixed{Side: "server", Root: "/srv", LibraryDir: lib, TargetVersion: "1.17.1"})

	mappings, _ := c.Get("MAPPINGS")
	want := filepath.Join(lib, "de", "oceanlabs", "mcp", "mcp_config", "1.17.1", "mcp_config-1.17.1-mappings.txt")
	if mappings != want {
		t.Errorf("MAPPINGS = %q, want %q", mappings, want)
	}
	if v, _ := c.Get("MC_SLIM"); v != "slim-jar" {
		t.Errorf("MC_SLIM = %q, want slim-jar", v)
	}
	bin, _ := c.Get("BINPATCH")
	if bin != filepath.Join(tmp, "data", "server.lzma") {
		t.Errorf("BINPATCH = %q", bin)
	}
	if _, err := os.Stat(bin); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
	if len(ex.calls) != 1 {
		t.Errorf("extractor called %d times, want 1", len(ex.calls))
	}

	// second resolve is a no-op
	if err := c.Resolve(context.Background(), ResolveOptions{LibraryRoot: lib, Extractor: ex, TempDir: tmp}); err != nil {
		t.Fatal(err)
	}
	if len(ex.calls) != 1 {
		t.Errorf("Resolve was not idempotent: %d extractor calls", len(ex.calls))
	}

	got, err := c.Replace("{SIDE}:{MINECRAFT_VERSION}:{TARGET_VERSION}")
	if err != nil || got != "server:1.17.1:1.17.1" {
		t.Errorf("Replace = %q, %v", got, err)
	}
}

func TestContextResolveAggregatesExtractionFailures(t *testing.T) {
	ex := &fakeExtractor{missing: map[string]bool{"/data/a.lzma": true, "/data/b.lzma": true}}
	c := NewContext(map[string]string{
		"A":  "/data/a.lzma",
		"B":  "/data/b.lzma",
		"OK": "/data/ok.bin",
	})
	err := c.Resolve(context.Background(), ResolveOptions{LibraryRoot: t.TempDir(), Extractor: ex, TempDir: t.TempDir()})
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if len(ee.Entries) != 2 {
		t.Errorf("expected 2 failed entries, got %v", ee.Entries)
	}
	msg := err.Error()
	if !strings.Contains(msg, "/data/a.lzma") || !strings.Contains(msg, "/data/b.lzma") {
		t.Errorf("message does not name both entries: %s", msg)
	}
}

func TestContextResolveRejectsEscapingEntries(t *testing.T) {
	tests := []string{
		"../outside.bin",
		"/data/../../outside.bin",
		"data/../../../etc/passwd",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			parent := t.TempDir()
			tmp := filepath.Join(parent, "extract")
			ex := &fakeExtractor{}
			c := NewContext(map[string]string{"EVIL": raw})

			err := c.Resolve(context.Background(), ResolveOptions{LibraryRoot: t.TempDir(), Extractor: ex, TempDir: tmp})
			if !errors.Is(err, ErrUnsafeDataEntry) {
				t.Fatalf("Resolve(%q) error = %v, want ErrUnsafeDataEntry", raw, err)
			}
			if len(ex.calls) != 0 {
				t.Errorf("extractor called for %q", raw)
			}
			if _, err := os.Stat(filepath.Join(parent, "outside.bin")); !os.IsNotExist(err) {
				t.Error("file written outside the extraction directory")
			}
		})
	}

	// ".." that stays inside the directory is fine
	tmp := t.TempDir()
	c := NewContext(map[string]string{"OK": "/data/../data/server.lzma"})
	if err := c.Resolve(context.Background(), ResolveOptions{LibraryRoot: t.TempDir(), Extractor: &fakeExtractor{}, TempDir: tmp}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v, _ := c.Get("OK"); v != filepath.Join(tmp, "data", "server.lzma") {
		t.Errorf("OK = %q", v)
	}
}

func TestContextResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewContext(map[string]string{"A": "'x'"})
	if err := c.Resolve(ctx, ResolveOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
