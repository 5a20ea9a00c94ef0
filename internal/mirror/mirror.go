// Package mirror fetches library files from an alternate repository root.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/netutil"
)

// Mirror fetches a repository-relative path into dst.
type Mirror interface {
	Name() string
	// Location is the root URL, for messages.
	Location() string
	Fetch(ctx context.Context, relPath, dst string) error
}

// Config carries the transport settings for every mirror kind.
type Config struct {
	Download netutil.DownloadConfig
	S3       S3Config
	// OCIInsecure allows plain-http registries.
	OCIInsecure bool
}

func DefaultConfig() Config {
	return Config{Download: netutil.DefaultConfig()}
}

// New picks an implementation from the mirror URL scheme:
// https:// and http:// use plain GETs, oci:// pulls single-layer images from a
// registry, s3:// reads objects from a bucket.
func New(m models.Mirror, cfg Config) (Mirror, error) {
	if m.URL == "" {
		return nil, fmt.Errorf("mirror %q has no url", m.Name)
	}
	u, err := url.Parse(m.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mirror url %q: %w", m.URL, err)
	}

	name := m.Name
	if name == "" {
		name = u.Host
	}

	switch u.Scheme {
	case "https", "http":
		if err := netutil.ValidateURL(m.URL, cfg.Download); err != nil {
			return nil, fmt.Errorf("mirror %s: %w", name, err)
		}
		return &httpMirror{name: name, base: m.URL, d: netutil.NewDownloader(cfg.Download)}, nil
	case "oci":
		return newOCIMirror(name, u, cfg.OCIInsecure)
	case "s3":
		return newS3Mirror(name, u, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported mirror scheme %q (want https, oci or s3)", u.Scheme)
	}
}

// SponsorMessage credits the mirror operator.
func SponsorMessage(m models.Mirror) string {
	if m.Homepage == "" {
		return fmt.Sprintf("Data kindly mirrored by %s", m.Name)
	}
	return fmt.Sprintf("Data kindly mirrored by %s at %s", m.Name, m.Homepage)
}

// Downloader fetches a URL to a file. *netutil.Downloader implements it.
type Downloader interface {
	Download(ctx context.Context, url, dst string) (*netutil.DownloadResult, error)
}

// FetchList downloads a JSON array of mirrors.
func FetchList(ctx context.Context, d Downloader, listURL string) ([]models.Mirror, error) {
	tmp, err := os.CreateTemp("", "mirrors-*.json")
	if err != nil {
		return nil, err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if _, err := d.Download(ctx, listURL, tmp.Name()); err != nil {
		return nil, fmt.Errorf("failed to fetch mirror list: %w", err)
	}
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, err
	}
	var list []models.Mirror
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse mirror list: %w", err)
	}
	return list, nil
}

type httpMirror struct {
	name string
	base string
	d    *netutil.Downloader
}

func (m *httpMirror) Name() string     { return m.name }
func (m *httpMirror) Location() string { return m.base }

func (m *httpMirror) Fetch(ctx context.Context, relPath, dst string) error {
	_, err := m.d.Download(ctx, netutil.JoinURL(m.base, relPath), dst)
	return err
}

func trimSlashes(s string) string {
	return strings.Trim(s, "/")
}
