package optionals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudloader/cloudinstaller/internal/models"
)

// ModListPath is where the mod list is written, relative to the install target.
const ModListPath = "mods/mod_list.json"

// ModList is the file the loader reads to find enabled optional mods.
type ModList struct {
	RepositoryRoot string   `json:"repositoryRoot"`
	ModRef         []string `json:"modRef"`
}

// SaveModList writes the enabled optionals' artifacts to path. Nothing is
// written when no optional is enabled. It returns the number of mods listed.
func SaveModList(root, path string, libs []models.OptionalLibrary, enabled func(string) bool) (int, error) {
	var refs []string
	for _, lib := range libs {
		if !lib.Valid() {
			continue
		}
		if enabled == nil || enabled(lib.Artifact) {
			refs = append(refs, lib.Artifact)
		}
	}
	if len(refs) == 0 {
		return 0, nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return 0, err
	}
	data, err := json.MarshalIndent(ModList{RepositoryRoot: filepath.ToSlash(abs), ModRef: refs}, "", "    ")
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create mod list directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write mod list: %w", err)
	}
	return len(refs), nil
}
