package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cloudloader/cloudinstaller/internal/checksum"
	"github.com/cloudloader/cloudinstaller/internal/libraries"
	"github.com/cloudloader/cloudinstaller/internal/mirror"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/netutil"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	"github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/optionals"
	"github.com/cloudloader/cloudinstaller/internal/processor"
	"github.com/cloudloader/cloudinstaller/internal/progress"
	"github.com/cloudloader/cloudinstaller/internal/tokens"
)

// Summary records what a server install did.
type Summary struct {
	ServerJar  string
	Libraries  *libraries.Report
	Processors *processor.Result
	ModList    int
}

// ServerInstall installs a dedicated server into an empty or existing directory.
type ServerInstall struct {
	deps    Deps
	hasher  *checksum.Hasher
	summary Summary
}

func NewServerInstall(deps Deps) *ServerInstall {
	if deps.Progress == nil {
		deps.Progress = progress.Discard
	}
	if deps.Fetcher == nil {
		deps.Fetcher = netutil.NewDownloader(deps.Config.Download)
	}
	if deps.Executor == nil {
		deps.Executor = &processor.JavaExecutor{Java: deps.Config.Java, JVMArgs: deps.Config.JVMArgs}
	}
	if deps.Config.Side == "" {
		deps.Config.Side = models.SideServer
	}
	return &ServerInstall{deps: deps, hasher: checksum.NewHasher(0)}
}

// Summary is valid after Run returns, including on failure.
func (s *ServerInstall) Summary() Summary { return s.summary }

func (s *ServerInstall) PathError(target string) string {
	exists, dir := isDir(target)
	switch {
	case !exists:
		return "The specified directory does not exist, it will be created"
	case !dir:
		return "The specified path needs to be a directory"
	}
	entries, err := os.ReadDir(target)
	if err == nil && len(entries) > 0 {
		return "There are already files at the target directory"
	}
	return ""
}

func (s *ServerInstall) SuccessMessage() string {
	version := s.deps.Profile.Version
	if s.summary.Libraries != nil {
		if n := s.summary.Libraries.Fetched(); n > 0 {
			return fmt.Sprintf("Successfully downloaded minecraft server, downloaded %d libraries and installed %s", n, version)
		}
	}
	return fmt.Sprintf("Successfully downloaded minecraft server and installed %s", version)
}

// Run performs the install. Errors from each phase are returned unchanged so
// callers can classify them with errors.Is; cancellation becomes ErrCanceled.
func (s *ServerInstall) Run(ctx context.Context, target, installer string) error {
	profile := s.deps.Profile
	cfg := s.deps.Config
	cb := s.deps.Progress
	log := logging.From(ctx)

	if cfg.Side != models.SideServer {
		return fmt.Errorf("%w: %s install is not supported", ErrUnknownAction, cfg.Side)
	}
	if exists, dir := isDir(target); exists && !dir {
		return fmt.Errorf("%w: there is a file at %s, the server cannot be installed here", ErrInvalidTarget, target)
	}

	target, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	libDir := filepath.Join(target, "libraries")
	if err := os.MkdirAll(libDir, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}
	log.Info("install", "installing server", "target", target, "version", profile.Version)

	m := s.resolveMirror(ctx)
	if err := checkCancel(ctx); err != nil {
		return err
	}

	if err := s.extractContained(target); err != nil {
		return err
	}
	if err := checkCancel(ctx); err != nil {
		return err
	}

	serverJar, err := s.serverJar(ctx, target, libDir)
	if err != nil {
		return canceled(ctx, err)
	}
	s.summary.ServerJar = serverJar
	if err := checkCancel(ctx); err != nil {
		return err
	}

	if err := s.acquireLibraries(ctx, libDir, m); err != nil {
		return canceled(ctx, err)
	}
	if err := checkCancel(ctx); err != nil {
		return err
	}

	tc := tokens.NewContext(profile.DataFor(cfg.Side))
	tc.SetFixed(tokens.Fixed{
		Side:          cfg.Side,
		TargetJar:     serverJar,
		TargetVersion: profile.Minecraft,
		Root:          target,
		Installer:     installer,
		LibraryDir:    libDir,
	})
	var extractor tokens.Extractor
	if s.deps.Archive != nil {
		extractor = s.deps.Archive
	}
	err = tc.Resolve(ctx, tokens.ResolveOptions{
		LibraryRoot: libDir,
		Extractor:   extractor,
		OnExtract: func(entry string) {
			cb.Message("  Extracting: "+entry, progress.Low)
		},
	})
	if dir := tc.TempDir(); dir != "" && !cfg.KeepTemp {
		defer os.RemoveAll(dir)
	}
	if err != nil {
		return canceled(ctx, err)
	}

	pipeline := &processor.Pipeline{
		Executor: s.deps.Executor,
		Hasher:   s.hasher,
		Progress: cb,
		Debug:    cfg.Debug,
		Dir:      target,
	}
	res, err := pipeline.Run(ctx, profile.ProcessorsFor(cfg.Side), tc, libDir)
	s.summary.Processors = res
	if err != nil {
		return canceled(ctx, err)
	}

	n, err := optionals.SaveModList(libDir, filepath.Join(target, optionals.ModListPath), profile.Optionals, s.deps.Enabled)
	if err != nil {
		return err
	}
	if n > 0 {
		cb.Message(fmt.Sprintf("Saved %d optional mods to %s", n, optionals.ModListPath), progress.Normal)
	}
	s.summary.ModList = n

	log.Info("install", "server installed", "target", target,
		"executed", res.Executed, "skipped", res.Skipped)
	return nil
}

// resolveMirror picks the override, the profile's mirror, or the first entry of
// the profile's mirror list, in that order. A mirror list that cannot be fetched,
// or a mirror that cannot be used, is logged and ignored.
func (s *ServerInstall) resolveMirror(ctx context.Context) mirror.Mirror {
	profile := s.deps.Profile
	cfg := s.deps.Config
	log := logging.From(ctx)

	var chosen *models.Mirror
	switch {
	case cfg.MirrorOverride != "":
		chosen = &models.Mirror{Name: "override", URL: cfg.MirrorOverride}
	case profile.Mirror != nil:
		chosen = profile.Mirror
	case profile.MirrorList != "" && !cfg.Offline:
		list, err := mirror.FetchList(ctx, s.deps.Fetcher, profile.MirrorList)
		if err != nil {
			log.Warn("install", "mirror list unavailable", "url", profile.MirrorList, "error", err.Error())
		} else if len(list) > 0 {
			chosen = &list[0]
		}
	}
	if chosen == nil {
		return nil
	}

	m, err := mirror.New(*chosen, cfg.Mirror)
	if err != nil {
		log.Warn("install", "mirror unusable, using canonical urls", "mirror", chosen.Name, "url", chosen.URL, "error", err.Error())
		return nil
	}
	s.deps.Progress.Stage(mirror.SponsorMessage(*chosen))
	return m
}

func (s *ServerInstall) extractContained(target string) error {
	contained := s.deps.Profile.Path
	if contained == nil {
		return nil
	}
	cb := s.deps.Progress
	cb.Stage("Extracting main jar:")
	if s.deps.Archive == nil {
		return fmt.Errorf("failed to extract main jar %s: no installer archive", contained.FileName())
	}
	if err := s.deps.Archive.ExtractArtifact(*contained, filepath.Join(target, contained.FileName())); err != nil {
		return fmt.Errorf("failed to extract main jar %s: %w", contained.FileName(), err)
	}
	cb.Stage("  Extracted successfully")
	return nil
}

// serverJar makes sure the vanilla server jar is present and returns its path.
func (s *ServerInstall) serverJar(ctx context.Context, target, libDir string) (path string, err error) {
	profile := s.deps.Profile
	cb := s.deps.Progress

	ctx, span := otel.StartSpan(ctx, "cloudinstaller.server_jar", attribute.String(otel.AttrTarget, target))
	defer func() { otel.EndSpan(span, err) }()

	cb.Stage("Considering minecraft server jar")
	path, err = tokens.Replace(map[string]string{
		tokens.KeyRoot:             target,
		tokens.KeyMinecraftVersion: profile.Minecraft,
		tokens.KeyTargetVersion:    profile.Minecraft,
		tokens.KeyLibraryDir:       libDir,
	}, profile.GetServerJarPath())
	if err != nil {
		return "", fmt.Errorf("server jar path: %w", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		cb.Message("  File exists, skipping download", progress.Low)
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	if s.deps.Config.Offline {
		return "", fmt.Errorf("minecraft server jar missing at %s and running offline; place it manually to skip the download", path)
	}

	dl := profile.ServerDownload
	if dl == nil || dl.URL == "" {
		if dl, err = s.vanillaDownload(ctx); err != nil {
			return "", err
		}
	}

	cb.Message("  Downloading minecraft server from "+dl.URL, progress.Normal)
	start := time.Now()
	if _, err := s.deps.Fetcher.Download(ctx, dl.URL, path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("downloading minecraft server failed: %w", err)
	}
	if dl.SHA1 != "" {
		ok, actual, err := s.hasher.Matches(path, dl.SHA1)
		if err != nil || !ok {
			s.hasher.Forget(path)
			os.Remove(path)
			return "", fmt.Errorf("downloading minecraft server failed, invalid checksum (expected %s, got %s); try again, or manually place server jar to skip download", dl.SHA1, actual)
		}
	}
	logging.From(ctx).Debug("install", "server jar downloaded", "path", path, "duration_ms", time.Since(start).Milliseconds())
	return path, nil
}

// vanillaDownload looks the server download up in the vanilla version manifest.
func (s *ServerInstall) vanillaDownload(ctx context.Context) (*models.LibraryDownload, error) {
	version := s.deps.Profile.Minecraft
	manifestURL := s.deps.Config.VersionManifestURL
	if manifestURL == "" {
		manifestURL = models.DefaultVersionManifestURL
	}

	tmp, err := os.MkdirTemp("", "cloudinstaller-version-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	data, err := s.fetchBytes(ctx, manifestURL, filepath.Join(tmp, "version_manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to download version manifest, can not find server jar URL: %w", err)
	}
	manifest, err := models.ParseVersionManifest(data)
	if err != nil {
		return nil, err
	}
	versionURL := manifest.URLFor(version)
	if versionURL == "" {
		return nil, fmt.Errorf("version %s not found in version manifest", version)
	}

	data, err = s.fetchBytes(ctx, versionURL, filepath.Join(tmp, version+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to download version json for %s: %w", version, err)
	}
	v, err := models.ParseVersion(data)
	if err != nil {
		return nil, err
	}
	dl := v.Download(models.SideServer)
	if dl == nil || dl.URL == "" {
		return nil, fmt.Errorf("failed to download minecraft server, info missing from version json for %s", version)
	}
	return dl, nil
}

func (s *ServerInstall) fetchBytes(ctx context.Context, url, dst string) ([]byte, error) {
	if _, err := s.deps.Fetcher.Download(ctx, url, dst); err != nil {
		return nil, err
	}
	return os.ReadFile(dst)
}

func (s *ServerInstall) acquireLibraries(ctx context.Context, libDir string, m mirror.Mirror) error {
	profile := s.deps.Profile
	cfg := s.deps.Config

	reqs := make([]libraries.Requirement, 0, len(profile.Libraries))
	for _, lib := range profile.Libraries {
		reqs = append(reqs, libraries.FromLibrary(lib))
	}
	reqs = append(reqs, libraries.FromProcessors(profile.ProcessorsFor(cfg.Side))...)
	reqs = libraries.Dedupe(reqs)

	sourceDirs := cfg.SourceDirs
	if sourceDirs == nil {
		sourceDirs = libraries.DefaultSourceDirs()
	}

	opts := libraries.Options{
		LibraryRoot: libDir,
		SourceDirs:  sourceDirs,
		Enabled:     s.deps.Enabled,
		Offline:     cfg.Offline,
	}
	if s.deps.Archive != nil {
		opts.Embedded = s.deps.Archive
	}
	if m != nil {
		opts.Mirror = m
	}

	acq := &libraries.Acquirer{Fetcher: s.deps.Fetcher, Hasher: s.hasher, Progress: s.deps.Progress}
	report, err := acq.Acquire(ctx, reqs, opts)
	s.summary.Libraries = report
	return err
}
