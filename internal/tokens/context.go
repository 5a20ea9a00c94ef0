package tokens

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
)

// Fixed keys seeded into every context.
const (
	KeySide             = "SIDE"
	KeyMinecraftJar     = "MINECRAFT_JAR"
	KeyTargetJar        = "TARGET_JAR"
	KeyMinecraftVersion = "MINECRAFT_VERSION"
	KeyTargetVersion    = "TARGET_VERSION"
	KeyRoot             = "ROOT"
	KeyInstaller        = "INSTALLER"
	KeyLibraryDir       = "LIBRARY_DIR"
)

// Extractor copies a file out of the installer archive.
type Extractor interface {
	ExtractFile(name, dst string) error
}

// ErrUnsafeDataEntry is returned for an archive data entry that would extract
// outside the private temp directory.
var ErrUnsafeDataEntry = errors.New("data entry escapes the extraction directory")

// ExtractionError lists every data entry that could not be extracted.
type ExtractionError struct {
	Entries []string
}

func (e *ExtractionError) Error() string {
	return "failed to extract files from archive:\n  " + strings.Join(e.Entries, "\n  ")
}

// Context is the token table for one installation run. It is not safe for
// concurrent use; a run is strictly sequential.
type Context struct {
	values   map[string]string
	pending  map[string]string
	resolved bool
	tempDir  string
}

// NewContext seeds the table with manifest data entries. Entries stay unresolved
// until Resolve is called.
func NewContext(data map[string]string) *Context {
	pending := make(map[string]string, len(data))
	for k, v := range data {
		pending[k] = v
	}
	return &Context{
		values:  make(map[string]string),
		pending: pending,
	}
}

// ResolveOptions feeds Resolve.
type ResolveOptions struct {
	LibraryRoot string
	Extractor   Extractor
	// TempDir overrides the private extraction directory (tests).
	TempDir string
	// OnExtract is called before each archive extraction.
	OnExtract func(entry string)
}

// Resolve converts pending data entries into final values: [artifact] becomes an
// absolute path under the library root, 'literal' loses its quotes, anything else
// is extracted from the installer archive into a private temp directory.
// Resolve is idempotent.
func (c *Context) Resolve(ctx context.Context, opts ResolveOptions) error {
	if c.resolved {
		return nil
	}

	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var failed []string
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := c.pending[key]
		v, err := artifact.ParseValue(raw)
		if err != nil {
			return fmt.Errorf("data entry %s: %w", key, err)
		}

		switch v.Kind {
		case artifact.KindArtifact, artifact.KindLiteral:
			resolved, err := v.Resolve(opts.LibraryRoot, nil)
			if err != nil {
				return fmt.Errorf("data entry %s: %w", key, err)
			}
			c.values[key] = resolved
		default:
			if raw == "" {
				c.values[key] = ""
				continue
			}
			dir, err := c.extractDir(opts.TempDir)
			if err != nil {
				return err
			}
			rel := filepath.FromSlash(strings.TrimPrefix(raw, "/"))
			if !filepath.IsLocal(rel) {
				return fmt.Errorf("data entry %s: %w: %q", key, ErrUnsafeDataEntry, raw)
			}
			target := filepath.Join(dir, rel)
			if opts.OnExtract != nil {
				opts.OnExtract(raw)
			}
			if opts.Extractor == nil {
				failed = append(failed, raw)
			} else if err := opts.Extractor.ExtractFile(raw, target); err != nil {
				failed = append(failed, raw)
			}
			c.values[key] = target
		}
	}

	if len(failed) > 0 {
		return &ExtractionError{Entries: failed}
	}

	c.pending = nil
	c.resolved = true
	return nil
}

func (c *Context) extractDir(override string) (string, error) {
	if c.tempDir != "" {
		return c.tempDir, nil
	}
	if override != "" {
		c.tempDir = override
		return c.tempDir, nil
	}
	dir, err := os.MkdirTemp("", "cloudinstaller-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	c.tempDir = dir
	return dir, nil
}

// TempDir is the extraction directory, or "" if nothing was extracted.
func (c *Context) TempDir() string { return c.tempDir }

// Set stores a final value, overriding any data entry of the same name.
func (c *Context) Set(key, value string) {
	c.values[key] = value
	delete(c.pending, key)
}

// Get returns a resolved value.
func (c *Context) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Values returns a copy of the resolved table.
func (c *Context) Values() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Replace expands input against the resolved table.
func (c *Context) Replace(input string) (string, error) {
	return Replace(c.values, input)
}

// Fixed holds the values every run provides.
type Fixed struct {
	Side          string
	TargetJar     string
	TargetVersion string
	Root          string
	Installer     string
	LibraryDir    string
}

// SetFixed seeds the fixed keys, using absolute paths.
func (c *Context) SetFixed(f Fixed) {
	c.Set(KeySide, f.Side)
	jar := absOrSelf(f.TargetJar)
	c.Set(KeyMinecraftJar, jar)
	c.Set(KeyTargetJar, jar)
	c.Set(KeyMinecraftVersion, f.TargetVersion)
	c.Set(KeyTargetVersion, f.TargetVersion)
	c.Set(KeyRoot, absOrSelf(f.Root))
	c.Set(KeyInstaller, absOrSelf(f.Installer))
	c.Set(KeyLibraryDir, absOrSelf(f.LibraryDir))
}

func absOrSelf(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
