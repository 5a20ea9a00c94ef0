package models

import "fmt"

// ArchiveReader is the part of the installer archive the profile loader needs.
type ArchiveReader interface {
	ReadFile(name string) ([]byte, error)
	Has(name string) bool
}

// ProfileFromArchive reads install_profile.json from the installer archive and,
// when the profile names a bundled version json, appends its libraries.
func ProfileFromArchive(a ArchiveReader) (*InstallProfile, error) {
	data, err := a.ReadFile(ProfileFileName)
	if err != nil {
		return nil, err
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, err
	}

	if p.JSON != "" && a.Has(p.JSON) {
		raw, err := a.ReadFile(p.JSON)
		if err != nil {
			return nil, err
		}
		v, err := ParseVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.JSON, err)
		}
		p.Libraries = append(v.Libraries, p.Libraries...)
	}
	return p, nil
}
