// Package libraries places every required library under the library root,
// preferring local copies over the network.
package libraries

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
	"github.com/cloudloader/cloudinstaller/internal/models"
)

// Requirement is one library to acquire. It is read-only during a run.
type Requirement struct {
	Name     artifact.Coordinate
	Download *models.LibraryDownload
	Optional bool
	// Toggle names the switch for optional libraries; defaults to the descriptor.
	Toggle string
	// Embedded libraries may be produced later in the install, so a missing
	// download url is not an error for them.
	Embedded bool
}

// FromLibrary converts a manifest entry.
func FromLibrary(l models.Library) Requirement {
	return Requirement{
		Name:     l.Name,
		Download: l.Artifact(),
		Optional: l.Optional,
		Toggle:   l.Toggle,
		Embedded: l.Embedded,
	}
}

// FromProcessors lists every jar and classpath entry the steps need. They carry
// no download metadata, so they are marked embedded: one that never shows up is
// reported by the pipeline as a missing program or dependency.
func FromProcessors(procs []models.Processor) []Requirement {
	var out []Requirement
	for _, p := range procs {
		out = append(out, Requirement{Name: p.Jar, Embedded: true})
		for _, c := range p.Classpath {
			out = append(out, Requirement{Name: c, Embedded: true})
		}
	}
	return out
}

// Dedupe drops repeated coordinates, keeping the first (which usually carries
// the download metadata).
func Dedupe(reqs []Requirement) []Requirement {
	seen := make(map[string]bool, len(reqs))
	out := reqs[:0:0]
	for _, r := range reqs {
		key := r.Name.Descriptor()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// ToggleName is the name passed to the enabled predicate.
func (r Requirement) ToggleName() string {
	if r.Toggle != "" {
		return r.Toggle
	}
	return r.Name.Descriptor()
}

// RelPath is the repository-relative path: the download's path when declared,
// otherwise the coordinate path.
func (r Requirement) RelPath() string {
	if r.Download != nil && r.Download.Path != "" {
		return r.Download.Path
	}
	return r.Name.Path()
}

func (r Requirement) URL() string {
	if r.Download == nil {
		return ""
	}
	return r.Download.URL
}

func (r Requirement) SHA1() string {
	if r.Download == nil {
		return ""
	}
	return r.Download.SHA1
}

func (r Requirement) Size() int64 {
	if r.Download == nil {
		return 0
	}
	return r.Download.Size
}

// Target is the file location under libraryRoot.
func (r Requirement) Target(libraryRoot string) string {
	return filepath.Join(libraryRoot, filepath.FromSlash(r.RelPath()))
}

// DefaultSourceDirs returns the local maven repository and the launcher's
// library directory, when they exist.
func DefaultSourceDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}
	var dirs []string
	for _, d := range []string{
		filepath.Join(MinecraftDir(home), "libraries"),
		filepath.Join(home, ".m2", "repository"),
	} {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// MinecraftDir is the launcher's data directory for the current OS.
func MinecraftDir(home string) string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ".minecraft")
		}
		return filepath.Join(home, ".minecraft")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "minecraft")
	default:
		return filepath.Join(home, ".minecraft")
	}
}
