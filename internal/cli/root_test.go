package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudloader/cloudinstaller/internal/config"
	"github.com/cloudloader/cloudinstaller/internal/install"
	"github.com/cloudloader/cloudinstaller/internal/observability/receipt"
)

// execute runs the root command in-process with logging off.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-format", "none"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	runTeardown()
	configFlag = ""
	receiptFlag = ""
	installInstallerFlag = ""
	installProfileFlag = ""
	return out.String(), err
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeZip(t *testing.T, path string, entries map[string]string) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"failure", errors.New("boom"), ExitFailure},
		{"install canceled", fmt.Errorf("%w: %w", install.ErrCanceled, context.Canceled), ExitCanceled},
		{"context canceled", fmt.Errorf("download: %w", context.Canceled), ExitCanceled},
		{"deadline", context.DeadlineExceeded, ExitFailure},
		{"changes", fmt.Errorf("%w: 1 changed", ErrChangesDetected), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}

	if got := resultStatus(context.Canceled); got != receipt.StatusCanceled {
		t.Errorf("resultStatus(canceled) = %q", got)
	}
}

func TestInstallConfig(t *testing.T) {
	f := config.Default()
	f.Offline = true
	f.SourceDirs = []string{"/repo"}
	f.Mirror = "s3://bucket/maven"
	f.Download.Timeout = 30 * time.Second
	f.Download.AllowInsecureHTTP = true
	f.Download.UseEnvProxy = true
	f.S3.Region = "eu-west-1"

	cfg := installConfig(f)
	if !cfg.Offline || cfg.MirrorOverride != "s3://bucket/maven" || len(cfg.SourceDirs) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Download.Timeout != 30*time.Second || cfg.Mirror.Download.Timeout != 30*time.Second {
		t.Errorf("timeout not propagated: %v / %v", cfg.Download.Timeout, cfg.Mirror.Download.Timeout)
	}
	if cfg.Download.MaxSize == 0 {
		t.Error("unset max size should keep the default")
	}
	if !cfg.Download.UseEnvProxy || !cfg.Mirror.Download.UseEnvProxy {
		t.Error("use_env_proxy not propagated")
	}
	if cfg.Mirror.S3.Insecure || cfg.Mirror.S3.Region != "eu-west-1" || !cfg.Mirror.OCIInsecure {
		t.Errorf("mirror cfg = %+v", cfg.Mirror)
	}

	off := false
	f.S3.UseSSL = &off
	if !installConfig(f).Mirror.S3.Insecure {
		t.Error("use_ssl: false should disable TLS")
	}
}

func TestResolveCommand(t *testing.T) {
	out, err := execute(t, "resolve", "--format", "json", "--base", "libs", "com.example:lib:2.0:sources@zip")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var got []Resolved
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries", len(got))
	}
	r := got[0]
	if r.File != "lib-2.0-sources.zip" || r.Path != "com/example/lib/2.0/lib-2.0-sources.zip" {
		t.Errorf("resolved = %+v", r)
	}
	if r.Local != filepath.Join("libs", "com", "example", "lib", "2.0", "lib-2.0-sources.zip") {
		t.Errorf("local = %q", r.Local)
	}

	if _, err := execute(t, "resolve", "--format", "text", "com.example:lib"); err == nil {
		t.Error("expected an error for a malformed descriptor")
	}
}

const diffOld = `{
  "version": "1.0",
  "minecraft": "1.17.1",
  "libraries": [
    {"name": "com.example:lib:2.0", "downloads": {"artifact": {"url": "https://x/lib.jar", "sha1": "aaaa"}}}
  ]
}`

const diffNew = `{
  "version": "1.0",
  "minecraft": "1.17.1",
  "libraries": [
    {"name": "com.example:lib:2.0", "downloads": {"artifact": {"url": "https://x/lib.jar", "sha1": "bbbb"}}}
  ]
}`

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.json")
	newPath := filepath.Join(dir, "new.json")
	os.WriteFile(oldPath, []byte(diffOld), 0644)
	os.WriteFile(newPath, []byte(diffNew), 0644)

	out, err := execute(t, "diff", "--fail-on", "critical", "--format", "text", oldPath, newPath)
	if !errors.Is(err, ErrChangesDetected) {
		t.Fatalf("err = %v, want ErrChangesDetected", err)
	}
	if !strings.Contains(out, "CRITICAL (1)") {
		t.Errorf("output:\n%s", out)
	}

	out, err = execute(t, "diff", "--fail-on", "never", "--format", "json", oldPath, newPath)
	if err != nil {
		t.Fatalf("fail-on=never: %v", err)
	}
	var report DiffReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if report.Outcome != "PASS" || report.Summary.Critical != 1 {
		t.Errorf("report = %+v", report)
	}

	_, err = execute(t, "diff", "--fail-on", "critical", "--format", "text", oldPath, oldPath)
	if err != nil {
		t.Errorf("identical profiles: %v", err)
	}
}

func TestInstallCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/server.jar":
			w.Write([]byte("server"))
		case "/com/example/lib/2.0/lib-2.0.jar":
			w.Write([]byte("lib"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	profile := fmt.Sprintf(`{
  "version": "1.17.1-cloud-1.0",
  "minecraft": "1.17.1",
  "path": "net.example:loader:1.0:universal",
  "serverDownload": {"url": %q, "sha1": %q},
  "libraries": [
    {"name": "com.example:lib:2.0", "downloads": {"artifact": {"path": "com/example/lib/2.0/lib-2.0.jar", "url": %q, "sha1": %q}}}
  ]
}`, srv.URL+"/server.jar", sha1Hex("server"), srv.URL+"/com/example/lib/2.0/lib-2.0.jar", sha1Hex("lib"))

	installer := writeZip(t, filepath.Join(dir, "installer.jar"), map[string]string{
		"install_profile.json":                                  profile,
		"maven/net/example/loader/1.0/loader-1.0-universal.jar": "loader",
	})

	repo := filepath.Join(dir, "repo")
	os.MkdirAll(repo, 0755)
	cfgPath := filepath.Join(dir, "cloudinstaller.yaml")
	cfg := fmt.Sprintf("source_dirs: [%q]\ndownload:\n  allow_private_hosts: true\n  allow_insecure_http: true\n", repo)
	os.WriteFile(cfgPath, []byte(cfg), 0644)

	target := filepath.Join(dir, "server")
	receiptPath := filepath.Join(dir, "receipt.json")

	out, err := execute(t, "--config", cfgPath, "--receipt", receiptPath,
		"install", "--installer", installer, "--target", target)
	if err != nil {
		t.Fatalf("install: %v\n%s", err, out)
	}
	if !strings.Contains(out, "downloaded 1 libraries and installed 1.17.1-cloud-1.0") {
		t.Errorf("output:\n%s", out)
	}

	for _, p := range []string{
		filepath.Join(target, "loader-1.0-universal.jar"),
		filepath.Join(target, "minecraft_server.1.17.1.jar"),
		filepath.Join(target, "libraries", "com", "example", "lib", "2.0", "lib-2.0.jar"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}

	data, err := os.ReadFile(receiptPath)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	var r receipt.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("receipt is not json: %v", err)
	}
	if r.Result.Status != receipt.StatusSuccess {
		t.Errorf("status = %q (%s)", r.Result.Status, r.Result.Error)
	}
	if r.Install == nil || r.Install.LibrariesFetched != 1 || r.Install.Action != "server" {
		t.Errorf("install summary = %+v", r.Install)
	}
	if r.Profile == nil || r.Profile.Version != "1.17.1-cloud-1.0" {
		t.Errorf("profile = %+v", r.Profile)
	}
	if r.OpID == "" {
		t.Error("receipt has no op id")
	}
}

func TestInstallCommandNoSource(t *testing.T) {
	_, err := execute(t, "install", "--target", t.TempDir())
	if !errors.Is(err, errNoSource) {
		t.Errorf("err = %v, want errNoSource", err)
	}
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	installer := writeZip(t, filepath.Join(dir, "installer.jar"), map[string]string{
		"install_profile.json":                        `{"version": "1.0", "minecraft": "1.17.1", "path": "net.example:loader:1.0"}`,
		"maven/net/example/loader/1.0/loader-1.0.jar": "loader",
	})
	target := filepath.Join(dir, "out")
	os.MkdirAll(target, 0755)

	out, err := execute(t, "extract", "--installer", installer, "--target", target)
	if err != nil {
		t.Fatalf("extract: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Extracted successfully") {
		t.Errorf("output:\n%s", out)
	}
	data, err := os.ReadFile(filepath.Join(target, "loader-1.0.jar"))
	if err != nil || string(data) != "loader" {
		t.Errorf("extracted file = %q, %v", data, err)
	}

	_, err = execute(t, "extract", "--installer", installer, "--target", filepath.Join(dir, "missing"))
	if !errors.Is(err, install.ErrInvalidTarget) {
		t.Errorf("err = %v, want ErrInvalidTarget", err)
	}
}
