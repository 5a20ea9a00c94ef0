package differ

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/wI2L/jsondiff"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
	"github.com/cloudloader/cloudinstaller/internal/models"
)

// DiffType indicates what kind of difference was detected
type DiffType string

const (
	DiffTypeAdded    DiffType = "added"
	DiffTypeRemoved  DiffType = "removed"
	DiffTypeChanged  DiffType = "changed"
	DiffTypeNoChange DiffType = "no_change"
)

// Kind is the section of the profile an item belongs to.
type Kind string

const (
	KindProfile   Kind = "profile"
	KindLibrary   Kind = "library"
	KindProcessor Kind = "processor"
	KindData      Kind = "data"
	KindOptional  Kind = "optional"
)

// ItemDiff is the difference for one library, processor, data entry or field set.
type ItemDiff struct {
	Kind         Kind
	Key          string
	DiffType     DiffType
	Patches      jsondiff.Patch // raw patches, changed items only
	Translations []string
}

// Result contains the complete diff result
type Result struct {
	HasChanges bool
	Diffs      []ItemDiff
}

// profileFields are the top-level values compared as one item.
type profileFields struct {
	Version       string                  `json:"version"`
	Minecraft     string                  `json:"minecraft"`
	JSON          string                  `json:"json,omitempty"`
	Path          string                  `json:"path,omitempty"`
	ServerJarPath string                  `json:"serverJarPath,omitempty"`
	Server        *models.LibraryDownload `json:"serverDownload,omitempty"`
	Mirror        string                  `json:"mirrorList,omitempty"`
	Welcome       string                  `json:"welcome,omitempty"`
}

// CompareProfiles diffs two install profiles. Libraries are matched by
// coordinate without version, processors by position, data and optionals by name.
func CompareProfiles(oldData, newData []byte) (*Result, error) {
	oldProfile, err := models.ParseProfile(oldData)
	if err != nil {
		return nil, fmt.Errorf("old profile: %w", err)
	}
	newProfile, err := models.ParseProfile(newData)
	if err != nil {
		return nil, fmt.Errorf("new profile: %w", err)
	}
	return Compare(oldProfile, newProfile)
}

// Compare diffs two parsed profiles.
func Compare(oldProfile, newProfile *models.InstallProfile) (*Result, error) {
	result := &Result{Diffs: []ItemDiff{}}

	add := func(d *ItemDiff, err error) error {
		if err != nil {
			return err
		}
		if d != nil {
			result.Diffs = append(result.Diffs, *d)
		}
		return nil
	}

	if err := add(compareItem(KindProfile, "fields", fields(oldProfile), fields(newProfile))); err != nil {
		return nil, err
	}

	oldLibs := librariesByKey(oldProfile.Libraries)
	newLibs := librariesByKey(newProfile.Libraries)
	for _, key := range unionKeys(oldLibs, newLibs) {
		o, oldOK := oldLibs[key]
		n, newOK := newLibs[key]
		if err := add(diffPresence(KindLibrary, key, o, n, oldOK, newOK)); err != nil {
			return nil, fmt.Errorf("library %s: %w", key, err)
		}
	}

	count := len(oldProfile.Processors)
	if len(newProfile.Processors) > count {
		count = len(newProfile.Processors)
	}
	for i := 0; i < count; i++ {
		var o, n models.Processor
		oldOK := i < len(oldProfile.Processors)
		newOK := i < len(newProfile.Processors)
		if oldOK {
			o = oldProfile.Processors[i]
		}
		if newOK {
			n = newProfile.Processors[i]
		}
		if err := add(diffPresence(KindProcessor, processorKey(i, o, n, oldOK), o, n, oldOK, newOK)); err != nil {
			return nil, fmt.Errorf("processor %d: %w", i, err)
		}
	}

	for _, key := range unionKeys(oldProfile.Data, newProfile.Data) {
		o, oldOK := oldProfile.Data[key]
		n, newOK := newProfile.Data[key]
		if err := add(diffPresence(KindData, key, o, n, oldOK, newOK)); err != nil {
			return nil, fmt.Errorf("data %s: %w", key, err)
		}
	}

	oldOpts := optionalsByName(oldProfile.Optionals)
	newOpts := optionalsByName(newProfile.Optionals)
	for _, key := range unionKeys(oldOpts, newOpts) {
		o, oldOK := oldOpts[key]
		n, newOK := newOpts[key]
		if err := add(diffPresence(KindOptional, key, o, n, oldOK, newOK)); err != nil {
			return nil, fmt.Errorf("optional %s: %w", key, err)
		}
	}

	result.HasChanges = len(result.Diffs) > 0
	return result, nil
}

func diffPresence[T any](kind Kind, key string, o, n T, oldOK, newOK bool) (*ItemDiff, error) {
	switch {
	case oldOK && !newOK:
		return &ItemDiff{Kind: kind, Key: key, DiffType: DiffTypeRemoved, Translations: []string{titleFor(kind) + " removed."}}, nil
	case !oldOK && newOK:
		return &ItemDiff{Kind: kind, Key: key, DiffType: DiffTypeAdded, Translations: []string{titleFor(kind) + " added."}}, nil
	default:
		return compareItem(kind, key, o, n)
	}
}

// compareItem returns nil when o and n marshal to the same JSON.
func compareItem(kind Kind, key string, o, n any) (*ItemDiff, error) {
	oldJSON, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal old value: %w", err)
	}
	newJSON, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal new value: %w", err)
	}

	patches, err := jsondiff.CompareJSON(oldJSON, newJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}
	if len(patches) == 0 {
		return nil, nil
	}
	return &ItemDiff{
		Kind:         kind,
		Key:          key,
		DiffType:     DiffTypeChanged,
		Patches:      patches,
		Translations: Translate(kind, patches),
	}, nil
}

func fields(p *models.InstallProfile) profileFields {
	f := profileFields{
		Version:       p.Version,
		Minecraft:     p.Minecraft,
		JSON:          p.JSON,
		ServerJarPath: p.ServerJarPath,
		Server:        p.ServerDownload,
		Mirror:        p.MirrorList,
		Welcome:       p.Welcome,
	}
	if p.Path != nil {
		f.Path = p.Path.Descriptor()
	}
	return f
}

// VersionlessKey identifies a library across version bumps.
func VersionlessKey(c artifact.Coordinate) string {
	key := c.Group() + ":" + c.Name()
	if c.Classifier() != "" {
		key += ":" + c.Classifier()
	}
	if c.Extension() != "" && c.Extension() != "jar" {
		key += "@" + c.Extension()
	}
	return key
}

func librariesByKey(libs []models.Library) map[string]models.Library {
	out := make(map[string]models.Library, len(libs))
	for _, lib := range libs {
		out[VersionlessKey(lib.Name)] = lib
	}
	return out
}

func optionalsByName(opts []models.OptionalLibrary) map[string]models.OptionalLibrary {
	out := make(map[string]models.OptionalLibrary, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func processorKey(i int, o, n models.Processor, oldOK bool) string {
	jar := n.Jar
	if oldOK {
		jar = o.Jar
	}
	return "#" + strconv.Itoa(i+1) + " " + VersionlessKey(jar)
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]V{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
