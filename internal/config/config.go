// Package config loads installer settings from a YAML file and the environment.
// Command-line flags are applied on top by the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudloader/cloudinstaller/internal/models"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLOUDINSTALLER_"

// DefaultFileName is looked up in the working directory when no --config is given.
const DefaultFileName = "cloudinstaller.yaml"

type File struct {
	Side       string          `yaml:"side"`
	Debug      bool            `yaml:"debug"`
	Offline    bool            `yaml:"offline"`
	KeepTemp   bool            `yaml:"keep_temp"`
	SourceDirs []string        `yaml:"source_dirs"`
	Mirror     string          `yaml:"mirror"`
	Select     string          `yaml:"select"`
	Optionals  map[string]bool `yaml:"optionals"`
	Java       string          `yaml:"java"`
	JVMArgs    []string        `yaml:"jvm_args"`

	Download Download `yaml:"download"`
	S3       S3       `yaml:"s3"`
	Log      Log      `yaml:"log"`
	Otel     Otel     `yaml:"otel"`
}

type Download struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxSize           int64         `yaml:"max_size"`
	AllowPrivateHosts bool          `yaml:"allow_private_hosts"`
	AllowInsecureHTTP bool          `yaml:"allow_insecure_http"`
	UseEnvProxy       bool          `yaml:"use_env_proxy"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    *bool  `yaml:"use_ssl"`
}

type Log struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

type Otel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns the settings used when nothing is configured.
func Default() *File {
	return &File{Side: models.SideServer}
}

// Load reads path. An empty path tries DefaultFileName and falls back to
// Default when it does not exist.
func Load(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks values that cannot be caught by decoding.
func (f *File) Validate() error {
	switch f.Side {
	case models.SideServer, models.SideClient:
	default:
		return fmt.Errorf("config: side must be %q or %q, got %q", models.SideServer, models.SideClient, f.Side)
	}
	if f.Download.Timeout < 0 {
		return errors.New("config: download.timeout must not be negative")
	}
	if f.Download.MaxSize < 0 {
		return errors.New("config: download.max_size must not be negative")
	}
	return nil
}

// ApplyEnv overlays CLOUDINSTALLER_* variables. lookup is usually os.LookupEnv.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("MIRROR", &f.Mirror)
	str("SELECT", &f.Select)
	str("JAVA", &f.Java)
	str("S3_ENDPOINT", &f.S3.Endpoint)
	str("S3_REGION", &f.S3.Region)
	str("S3_ACCESS_KEY", &f.S3.AccessKey)
	str("S3_SECRET_KEY", &f.S3.SecretKey)
	str("OTEL_ENDPOINT", &f.Otel.Endpoint)

	if v, ok := lookup(EnvPrefix + "SOURCE_DIRS"); ok && v != "" {
		f.SourceDirs = filepath.SplitList(v)
	}

	for name, dst := range map[string]*bool{
		"DEBUG":         &f.Debug,
		"OFFLINE":       &f.Offline,
		"OTEL":          &f.Otel.Enabled,
		"USE_ENV_PROXY": &f.Download.UseEnvProxy,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	return f.Validate()
}
