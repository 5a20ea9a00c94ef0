package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/cloudloader/cloudinstaller/internal/config"
	"github.com/cloudloader/cloudinstaller/internal/extract"
	"github.com/cloudloader/cloudinstaller/internal/install"
	"github.com/cloudloader/cloudinstaller/internal/mirror"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	"github.com/cloudloader/cloudinstaller/internal/progress"
)

var errNoSource = errors.New("either --installer or --profile is required")

// source is the profile for a run and, when an installer was given, the archive
// it came from.
type source struct {
	profile     *models.InstallProfile
	archive     *extract.Archive
	profilePath string
	installer   string
}

// openSource loads the profile from profilePath when set, otherwise from the
// installer archive. The archive stays open so the run can extract from it.
func openSource(installerPath, profilePath string) (*source, error) {
	if installerPath == "" && profilePath == "" {
		return nil, errNoSource
	}

	src := &source{}
	if installerPath != "" {
		abs, err := filepath.Abs(installerPath)
		if err != nil {
			return nil, err
		}
		a, err := extract.Open(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to open installer: %w", err)
		}
		src.archive = a
		src.installer = abs
	}

	var err error
	if profilePath != "" {
		src.profile, err = models.LoadProfile(profilePath)
		src.profilePath = profilePath
	} else {
		src.profile, err = models.ProfileFromArchive(src.archive)
		src.profilePath = src.installer
	}
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to load install profile: %w", err)
	}
	return src, nil
}

// deps fills the archive without storing a typed nil in the interface.
func (s *source) deps(cfg install.Config, cb progress.Callback) install.Deps {
	d := install.Deps{Profile: s.profile, Config: cfg, Progress: cb}
	if s.archive != nil {
		d.Archive = s.archive
	}
	return d
}

func (s *source) Close() error {
	if s.archive == nil {
		return nil
	}
	return s.archive.Close()
}

// installConfig translates the merged settings into the run configuration.
func installConfig(f *config.File) install.Config {
	cfg := install.DefaultConfig()
	cfg.Side = f.Side
	cfg.Debug = f.Debug
	cfg.Offline = f.Offline
	cfg.KeepTemp = f.KeepTemp
	cfg.SourceDirs = f.SourceDirs
	cfg.MirrorOverride = f.Mirror
	cfg.Java = f.Java
	cfg.JVMArgs = f.JVMArgs

	if f.Download.Timeout > 0 {
		cfg.Download.Timeout = f.Download.Timeout
	}
	if f.Download.MaxSize > 0 {
		cfg.Download.MaxSize = f.Download.MaxSize
	}
	cfg.Download.AllowPrivateHosts = f.Download.AllowPrivateHosts
	cfg.Download.AllowInsecureHTTP = f.Download.AllowInsecureHTTP
	cfg.Download.UseEnvProxy = f.Download.UseEnvProxy

	cfg.Mirror.Download = cfg.Download
	cfg.Mirror.OCIInsecure = f.Download.AllowInsecureHTTP
	cfg.Mirror.S3 = mirror.S3Config{
		Endpoint:  f.S3.Endpoint,
		Region:    f.S3.Region,
		AccessKey: f.S3.AccessKey,
		SecretKey: f.S3.SecretKey,
		Insecure:  f.S3.UseSSL != nil && !*f.S3.UseSSL,
	}
	return cfg
}

// progressFor prints to out and, when logs are machine readable, mirrors every
// message into the structured log.
func progressFor(out io.Writer, log logging.Logger, debug bool) progress.Callback {
	level := progress.Normal
	if debug {
		level = progress.Low
	}
	cb := progress.Writer(level, out)
	if settings.Log.Format == logging.FormatJSONL {
		return progress.Multi(cb, progress.Logged(log, "install"))
	}
	return cb
}
