package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
)

// maxTagLength is the OCI distribution limit.
const maxTagLength = 128

var (
	invalidTagChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	// "_" is doubled before "/" becomes "_.", so every "_" in a tag is
	// followed by "_" or "." and the path can be read back.
	tagEscaper = strings.NewReplacer("_", "__", "/", "_.")
)

// TagFor maps a repository-relative path to an image tag. Distinct paths get
// distinct tags. Paths that do not fit in a tag are replaced by their sha256.
func TagFor(relPath string) string {
	rel := trimSlashes(relPath)
	tag := tagEscaper.Replace(rel)
	if tag == "" || len(tag) > maxTagLength || tag[0] == '.' || tag[0] == '-' ||
		invalidTagChars.MatchString(tag) || strings.HasPrefix(tag, "sha256-") {
		sum := sha256.Sum256([]byte(rel))
		return "sha256-" + hex.EncodeToString(sum[:])
	}
	return tag
}

// ociMirror stores each artifact as a single-layer image whose uncompressed
// layer is the file.
type ociMirror struct {
	name     string
	repo     name.Repository
	insecure bool
}

func newOCIMirror(mirrorName string, u *url.URL, insecure bool) (*ociMirror, error) {
	var opts []name.Option
	if insecure {
		opts = append(opts, name.Insecure)
	}
	repo, err := name.NewRepository(u.Host+"/"+trimSlashes(u.Path), opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid oci mirror %q: %w", u.String(), err)
	}
	return &ociMirror{name: mirrorName, repo: repo, insecure: insecure}, nil
}

func (m *ociMirror) Name() string     { return m.name }
func (m *ociMirror) Location() string { return "oci://" + m.repo.String() }

func (m *ociMirror) Fetch(ctx context.Context, relPath, dst string) error {
	ref := m.repo.Tag(TagFor(relPath)).String()

	opts := []crane.Option{crane.WithContext(ctx)}
	if m.insecure {
		opts = append(opts, crane.Insecure)
	}
	img, err := crane.Pull(ref, opts...)
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	layers, err := img.Layers()
	if err != nil {
		return fmt.Errorf("read layers of %s: %w", ref, err)
	}
	if len(layers) != 1 {
		return fmt.Errorf("%s: expected exactly one layer, got %d", ref, len(layers))
	}

	rc, err := layers[0].Uncompressed()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(part)
		return fmt.Errorf("read layer of %s: %w", ref, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dst)
}
