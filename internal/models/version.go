package models

import (
	"encoding/json"
	"fmt"
)

// DefaultVersionManifestURL lists every vanilla release.
const DefaultVersionManifestURL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

// VersionManifest is the vanilla release index.
type VersionManifest struct {
	Versions []VersionRef `json:"versions"`
}

type VersionRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// URLFor returns the version JSON URL for id, or "".
func (m *VersionManifest) URLFor(id string) string {
	for _, v := range m.Versions {
		if v.ID == id {
			return v.URL
		}
	}
	return ""
}

// Version is a version JSON: the vanilla one (downloads) or the one bundled in
// the installer (libraries).
type Version struct {
	ID        string                     `json:"id"`
	Libraries []Library                  `json:"libraries,omitempty"`
	Downloads map[string]LibraryDownload `json:"downloads,omitempty"`
}

// Download returns the named download ("server", "client") or nil.
func (v *Version) Download(side string) *LibraryDownload {
	d, ok := v.Downloads[side]
	if !ok {
		return nil
	}
	return &d
}

func ParseVersionManifest(data []byte) (*VersionManifest, error) {
	var m VersionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse version manifest: %w", err)
	}
	return &m, nil
}

func ParseVersion(data []byte) (*Version, error) {
	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse version json: %w", err)
	}
	return &v, nil
}
