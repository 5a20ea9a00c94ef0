package install

import (
	"github.com/cloudloader/cloudinstaller/internal/mirror"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/netutil"
)

// Config is threaded through every phase of a run. There are no package-level
// switches.
type Config struct {
	Side string
	// Debug keeps mismatched processor outputs on disk.
	Debug   bool
	Offline bool
	// KeepTemp leaves the data extraction directory behind.
	KeepTemp bool
	// SourceDirs are local repositories searched before any download. nil uses
	// libraries.DefaultSourceDirs.
	SourceDirs []string
	// MirrorOverride replaces the profile's mirror. "" keeps it.
	MirrorOverride     string
	VersionManifestURL string
	Download           netutil.DownloadConfig
	Mirror             mirror.Config
	Java               string
	JVMArgs            []string
}

func DefaultConfig() Config {
	return Config{
		Side:               models.SideServer,
		VersionManifestURL: models.DefaultVersionManifestURL,
		Download:           netutil.DefaultConfig(),
		Mirror:             mirror.DefaultConfig(),
	}
}
