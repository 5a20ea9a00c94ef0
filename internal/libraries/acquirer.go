package libraries

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
	"github.com/cloudloader/cloudinstaller/internal/checksum"
	"github.com/cloudloader/cloudinstaller/internal/mirror"
	"github.com/cloudloader/cloudinstaller/internal/netutil"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	"github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/progress"
)

// Fetcher downloads a URL to a file. *netutil.Downloader implements it.
type Fetcher interface {
	Download(ctx context.Context, url, dst string) (*netutil.DownloadResult, error)
}

// EmbeddedSource provides libraries shipped inside the installer archive.
type EmbeddedSource interface {
	HasArtifact(c artifact.Coordinate) bool
	ExtractArtifact(c artifact.Coordinate, dst string) error
}

type Options struct {
	LibraryRoot string
	// SourceDirs are searched in order for an existing copy.
	SourceDirs []string
	// Embedded is consulted after SourceDirs; may be nil.
	Embedded EmbeddedSource
	// Mirror is tried before the canonical url; may be nil.
	Mirror mirror.Mirror
	// Enabled gates optional libraries by toggle name. nil enables everything.
	Enabled func(name string) bool
	// Offline forbids the mirror and canonical url steps.
	Offline bool
}

// Acquirer runs the acquisition order for each requirement, one at a time.
type Acquirer struct {
	Fetcher  Fetcher
	Hasher   *checksum.Hasher
	Progress progress.Callback
}

// NewAcquirer wires an acquirer with a fresh hasher. cb may be nil.
func NewAcquirer(f Fetcher, cb progress.Callback) *Acquirer {
	if cb == nil {
		cb = progress.Discard
	}
	return &Acquirer{Fetcher: f, Hasher: checksum.NewHasher(0), Progress: cb}
}

// Acquire produces every requirement under opts.LibraryRoot. For each one the
// first match wins: disabled, already present, a source dir, the installer
// archive, the mirror, the canonical url. Failures are collected and returned as
// one *AcquisitionError; cancellation is checked before each library and
// returns ctx.Err() with the partial report.
func (a *Acquirer) Acquire(ctx context.Context, reqs []Requirement, opts Options) (*Report, error) {
	log := logging.From(ctx)
	cb := a.Progress
	if cb == nil {
		cb = progress.Discard
	}
	if a.Hasher == nil {
		a.Hasher = checksum.NewHasher(0)
	}

	cb.Start("Downloading libraries")
	cb.Message(fmt.Sprintf("Found %d additional library directories", len(opts.SourceDirs)), progress.Normal)

	report := &Report{}
	total := float64(len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cb.Progress(float64(i+1) / total)

		out := a.acquireOne(ctx, req, opts)
		report.Outcomes = append(report.Outcomes, out)

		switch out.Source {
		case SourceFailed:
			log.Warn("libraries", "library failed", "name", out.Name, "reason", out.Reason)
		case SourceDisabled:
			log.Debug("libraries", "library disabled", "name", out.Name)
		default:
			log.Debug("libraries", "library ready", "name", out.Name, "source", string(out.Source))
		}
	}

	// a cancellation during the last download surfaces as a failure; report it as cancellation
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, report.Err()
}

func (a *Acquirer) acquireOne(ctx context.Context, req Requirement, opts Options) (out Outcome) {
	name := req.Name.Descriptor()
	target := req.Target(opts.LibraryRoot)
	out = Outcome{Name: name, Path: target}

	ctx, span := otel.StartSpan(ctx, "cloudinstaller.library", attribute.String(otel.AttrLibrary, name))
	defer func() {
		span.SetAttributes(attribute.String(otel.AttrSource, string(out.Source)))
		var err error
		if out.Source == SourceFailed {
			err = fmt.Errorf("%s", out.Reason)
		}
		otel.EndSpan(span, err)
	}()

	cb := a.Progress
	if cb == nil {
		cb = progress.Discard
	}

	if opts.Enabled != nil && !opts.Enabled(req.ToggleName()) {
		cb.Message("Considering library "+name+": Not Downloading {Disabled}", progress.Normal)
		out.Source = SourceDisabled
		return out
	}
	cb.Stage("Considering library " + name)

	sha1 := req.SHA1()

	if ok, _ := a.verify(target, req); ok {
		cb.Message("  File exists: Checksum validated.", progress.Low)
		out.Source = SourceExisting
		return out
	} else if exists(target) {
		cb.Message("  File exists: Invalid checksum, deleting file.", progress.Normal)
		a.remove(target)
	}

	for _, dir := range opts.SourceDirs {
		candidate := filepath.Join(dir, filepath.FromSlash(req.RelPath()))
		if ok, _ := a.verify(candidate, req); !ok {
			continue
		}
		if err := copyFile(candidate, target); err != nil {
			cb.Message(fmt.Sprintf("  Failed to copy %s: %v", candidate, err), progress.Normal)
			continue
		}
		a.Hasher.Forget(target)
		cb.Message("  Copied from "+dir, progress.Normal)
		out.Source = SourceLocal
		return out
	}

	if opts.Embedded != nil && opts.Embedded.HasArtifact(req.Name) {
		cb.Message("  Extracting library from installer", progress.Normal)
		if err := opts.Embedded.ExtractArtifact(req.Name, target); err == nil {
			if ok, _ := a.verify(target, req); ok {
				out.Source = SourceArchive
				return out
			}
			cb.Message("  Embedded copy has an invalid checksum", progress.Normal)
			a.remove(target)
		} else {
			cb.Message("  Failed to extract: "+err.Error(), progress.Normal)
		}
	}

	url := req.URL()
	if opts.Offline {
		if url == "" && req.Embedded {
			out.Source = SourceDeferred
			return out
		}
		out.Source = SourceFailed
		out.Reason = "not available locally and running offline"
		return out
	}

	if opts.Mirror != nil {
		cb.Message("  Downloading library from mirror "+opts.Mirror.Location(), progress.Normal)
		if err := opts.Mirror.Fetch(ctx, req.RelPath(), target); err != nil {
			cb.Message("  Mirror download failed: "+err.Error(), progress.Low)
			a.remove(target)
		} else if ok, actual := a.verify(target, req); ok {
			out.Source = SourceMirror
			return out
		} else {
			cb.Message(fmt.Sprintf("  Invalid checksum from mirror: expected %s, got %s", sha1, actual), progress.Normal)
			a.remove(target)
		}
	}

	if url == "" {
		if req.Embedded {
			cb.Message("  No download url, expecting it to be provided later", progress.Low)
			out.Source = SourceDeferred
			return out
		}
		out.Source = SourceFailed
		out.Reason = "no download url"
		return out
	}

	cb.Message("  Downloading library from "+url, progress.Normal)
	if _, err := a.Fetcher.Download(ctx, url, target); err != nil {
		a.remove(target)
		out.Source = SourceFailed
		out.Reason = err.Error()
		return out
	}
	if ok, actual := a.verify(target, req); !ok {
		a.remove(target)
		out.Source = SourceFailed
		out.Reason = fmt.Sprintf("invalid checksum: expected %s, got %s", sha1, actual)
		return out
	}
	cb.Message("  Downloaded", progress.Low)
	out.Source = SourceURL
	return out
}

// verify reports whether path exists and matches the requirement's sha1, or its
// size when only a size is known.
func (a *Acquirer) verify(path string, req Requirement) (bool, string) {
	ok, actual, err := a.Hasher.Matches(path, req.SHA1())
	if err != nil || !ok {
		return false, actual
	}
	if req.SHA1() == "" && req.Size() > 0 {
		info, err := os.Stat(path)
		if err != nil || info.Size() != req.Size() {
			return false, ""
		}
	}
	return true, actual
}

func (a *Acquirer) remove(path string) {
	a.Hasher.Forget(path)
	_ = os.Remove(path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dst)
}
