// Package version reports the installer build version.
package version

import (
	"runtime"
	"runtime/debug"
)

// Name is the program name used in receipts, spans and the User-Agent header.
const Name = "cloudinstaller"

// Swappable for testing
var readBuildInfo = debug.ReadBuildInfo

// BuildVersion returns the module version, or "dev" if unavailable.
func BuildVersion() string {
	info, ok := readBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// UserAgent is sent with every library download.
func UserAgent() string {
	return Name + "/" + BuildVersion() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
