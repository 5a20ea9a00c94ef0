package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	data := `
side: server
offline: true
source_dirs: [/a, /b]
mirror: oci://registry.example.com/libs
optionals:
  jei: false
download:
  timeout: 90s
  max_size: 1048576
  use_env_proxy: true
s3:
  region: eu-west-1
log:
  format: jsonl
`
	f, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !f.Offline || len(f.SourceDirs) != 2 || f.Mirror != "oci://registry.example.com/libs" {
		t.Errorf("Parse() = %+v", f)
	}
	if f.Download.Timeout != 90*time.Second || f.Download.MaxSize != 1<<20 || !f.Download.UseEnvProxy {
		t.Errorf("download = %+v", f.Download)
	}
	if v, ok := f.Optionals["jei"]; !ok || v {
		t.Errorf("optionals = %v", f.Optionals)
	}
	if f.S3.Region != "eu-west-1" || f.Log.Format != "jsonl" {
		t.Errorf("s3/log = %+v %+v", f.S3, f.Log)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown key", "sidee: server\n", "field sidee not found"},
		{"bad side", "side: both\n", "side must be"},
		{"negative timeout", "download:\n  timeout: -1s\n", "timeout"},
		{"bad yaml", "side: [\n", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if f.Side != "server" {
		t.Errorf("Side = %q, want server", f.Side)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	os.WriteFile(path, []byte("debug: true\n"), 0644)

	f, err := Load(path)
	if err != nil || !f.Debug {
		t.Fatalf("Load() = %+v, %v", f, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CLOUDINSTALLER_MIRROR":        "https://mirror.example.com/",
		"CLOUDINSTALLER_SOURCE_DIRS":   "/x" + string(os.PathListSeparator) + "/y",
		"CLOUDINSTALLER_DEBUG":         "true",
		"CLOUDINSTALLER_S3_SECRET_KEY": "s3cr3t",
		"CLOUDINSTALLER_USE_ENV_PROXY": "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	f := Default()
	f.Mirror = "from-file"
	if err := f.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if f.Mirror != "https://mirror.example.com/" {
		t.Errorf("Mirror = %q", f.Mirror)
	}
	if len(f.SourceDirs) != 2 || f.SourceDirs[1] != "/y" {
		t.Errorf("SourceDirs = %q", f.SourceDirs)
	}
	if !f.Debug || f.S3.SecretKey != "s3cr3t" || !f.Download.UseEnvProxy {
		t.Errorf("ApplyEnv() = %+v", f)
	}

	env["CLOUDINSTALLER_OFFLINE"] = "sometimes"
	if err := Default().ApplyEnv(lookup); err == nil {
		t.Error("invalid bool should fail")
	}
}
