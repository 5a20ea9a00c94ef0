package extract

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
)

// writeZip builds an archive holding files (name -> content).
func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "installer.jar")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtractFile(t *testing.T) {
	a, err := Open(writeZip(t, map[string]string{
		"data/server.lzma":     "patch",
		"install_profile.json": "{}",
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	dst := filepath.Join(t.TempDir(), "x", "server.lzma")
	// data entries in profiles carry a leading slash
	if err := a.ExtractFile("/data/server.lzma", dst); err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "patch" {
		t.Errorf("content = %q", got)
	}

	err = a.ExtractFile("/data/missing.lzma", dst)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}

	if !a.Has("install_profile.json") || a.Has("nope") {
		t.Error("Has returned wrong answer")
	}
}

func TestExtractArtifact(t *testing.T) {
	c := artifact.MustParse("net.example:loader:1.0:universal")
	a, err := Open(writeZip(t, map[string]string{
		"maven/net/example/loader/1.0/loader-1.0-universal.jar": "jar-bytes",
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if !a.HasArtifact(c) {
		t.Fatal("HasArtifact = false")
	}
	dst := c.LocalPath(t.TempDir())
	if err := a.ExtractArtifact(c, dst); err != nil {
		t.Fatalf("ExtractArtifact: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "jar-bytes" {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(dst + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestOpenNotZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.jar")
	os.WriteFile(p, []byte("not a zip"), 0644)
	if _, err := Open(p); err == nil {
		t.Error("expected error opening non-zip file")
	}
}
