// Package extract reads files out of the installer archive.
package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
)

// ErrEntryNotFound is returned when the archive has no such entry.
var ErrEntryNotFound = errors.New("entry not found in installer archive")

// MavenPrefix is the directory embedded libraries live under.
const MavenPrefix = "maven/"

// Archive is an open installer archive.
type Archive struct {
	path    string
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// Open opens the zip (or jar) at path.
func Open(p string) (*Archive, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open installer archive %s: %w", p, err)
	}
	a := &Archive{path: p, rc: rc, entries: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		a.entries[f.Name] = f
	}
	return a, nil
}

func (a *Archive) Path() string { return a.path }

func (a *Archive) Close() error { return a.rc.Close() }

// Has reports whether name exists. A leading slash is ignored.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[normalize(name)]
	return ok
}

// ReadFile returns the contents of an entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f, ok := a.entries[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ExtractFile copies entry name to dst, creating parent directories.
func (a *Archive) ExtractFile(name, dst string) error {
	f, ok := a.entries[normalize(name)]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrEntryNotFound)
	}
	if f.FileInfo().IsDir() {
		return fmt.Errorf("%s is a directory", name)
	}

	r, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer r.Close()

	return writeFile(r, dst)
}

// ExtractArtifact copies the embedded copy of c (maven/<path>) to dst.
func (a *Archive) ExtractArtifact(c artifact.Coordinate, dst string) error {
	return a.ExtractFile(MavenPrefix+c.Path(), dst)
}

// HasArtifact reports whether the archive embeds c.
func (a *Archive) HasArtifact(c artifact.Coordinate) bool {
	return a.Has(MavenPrefix + c.Path())
}

func normalize(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

func writeFile(r io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
