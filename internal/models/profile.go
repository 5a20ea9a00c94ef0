package models

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
)

// DefaultServerJarPath is used when a profile does not set serverJarPath.
const DefaultServerJarPath = "{ROOT}/minecraft_server.{MINECRAFT_VERSION}.jar"

// ProfileFileName is the profile's name inside the installer archive.
const ProfileFileName = "install_profile.json"

// Sides
const (
	SideClient = "client"
	SideServer = "server"
)

// InstallProfile is the parsed install_profile.json.
type InstallProfile struct {
	Spec          int                  `json:"spec"`
	Profile       string               `json:"profile"`
	Version       string               `json:"version"`
	Minecraft     string               `json:"minecraft"`
	Path          *artifact.Coordinate `json:"path,omitempty"`
	JSON          string               `json:"json,omitempty"`
	ServerJarPath string               `json:"serverJarPath,omitempty"`
	// ServerDownload pins the target jar; when absent it is looked up in the
	// vanilla version manifest.
	ServerDownload *LibraryDownload     `json:"serverDownload,omitempty"`
	Mirror         *Mirror              `json:"mirror,omitempty"`
	MirrorList     string               `json:"mirrorList,omitempty"`
	Welcome        string               `json:"welcome,omitempty"`
	Data           map[string]DataEntry `json:"data,omitempty"`
	Processors     []Processor          `json:"processors,omitempty"`
	Libraries      []Library            `json:"libraries,omitempty"`
	Optionals      []OptionalLibrary    `json:"optionals,omitempty"`
}

// DataEntry is a per-side token value.
type DataEntry struct {
	Client string `json:"client"`
	Server string `json:"server"`
}

// ForSide picks the value for side.
func (d DataEntry) ForSide(side string) string {
	if side == SideClient {
		return d.Client
	}
	return d.Server
}

// Processor is one post-install step.
type Processor struct {
	Sides     []string              `json:"sides,omitempty"`
	Jar       artifact.Coordinate   `json:"jar"`
	Classpath []artifact.Coordinate `json:"classpath,omitempty"`
	Args      []string              `json:"args,omitempty"`
	Outputs   map[string]string     `json:"outputs,omitempty"`
}

// AppliesTo reports whether the step runs on side. No sides means every side.
func (p Processor) AppliesTo(side string) bool {
	if len(p.Sides) == 0 {
		return true
	}
	for _, s := range p.Sides {
		if s == side {
			return true
		}
	}
	return false
}

// Library is a versioned dependency.
type Library struct {
	Name      artifact.Coordinate `json:"name"`
	Downloads *LibraryDownloads   `json:"downloads,omitempty"`
	// Optional libraries are gated by a named toggle.
	Optional bool   `json:"optional,omitempty"`
	Toggle   string `json:"toggle,omitempty"`
	// Embedded marks libraries shipped inside the installer archive.
	Embedded bool `json:"embedded,omitempty"`
}

type LibraryDownloads struct {
	Artifact *LibraryDownload `json:"artifact,omitempty"`
}

// Artifact returns the artifact download or nil.
func (l Library) Artifact() *LibraryDownload {
	if l.Downloads == nil {
		return nil
	}
	return l.Downloads.Artifact
}

// LibraryDownload is the download metadata for one file.
type LibraryDownload struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Mirror is an alternate download root, credited in the sponsor message.
type Mirror struct {
	Name     string `json:"name"`
	Image    string `json:"image,omitempty"`
	Homepage string `json:"homepage,omitempty"`
	URL      string `json:"url"`
}

// OptionalLibrary is a user-toggleable mod.
type OptionalLibrary struct {
	Name     string `json:"name"`
	Artifact string `json:"artifact"`
	Maven    string `json:"maven"`
	Client   bool   `json:"client,omitempty"`
	Server   bool   `json:"server,omitempty"`
	Default  *bool  `json:"default,omitempty"`
	Inject   *bool  `json:"inject,omitempty"`
	Desc     string `json:"desc,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Valid requires name, artifact and maven.
func (o OptionalLibrary) Valid() bool {
	return o.Name != "" && o.Artifact != "" && o.Maven != ""
}

// IsDefault defaults to true.
func (o OptionalLibrary) IsDefault() bool {
	return o.Default == nil || *o.Default
}

// ForSide reports whether the optional applies to side.
func (o OptionalLibrary) ForSide(side string) bool {
	if side == SideClient {
		return o.Client
	}
	return o.Server
}

// ParseProfile decodes and validates profile JSON.
func ParseProfile(data []byte) (*InstallProfile, error) {
	var p InstallProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse install profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProfile reads a profile from disk.
func LoadProfile(path string) (*InstallProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read install profile: %w", err)
	}
	return ParseProfile(data)
}

// Validate checks the fields every install needs.
func (p *InstallProfile) Validate() error {
	if p.Minecraft == "" {
		return fmt.Errorf("install profile: missing minecraft version")
	}
	for i, proc := range p.Processors {
		if proc.Jar.IsZero() {
			return fmt.Errorf("install profile: processor %d has no jar", i)
		}
	}
	for i, lib := range p.Libraries {
		if lib.Name.IsZero() {
			return fmt.Errorf("install profile: library %d has no name", i)
		}
	}
	return nil
}

// GetServerJarPath returns the serverJarPath template.
func (p *InstallProfile) GetServerJarPath() string {
	if p.ServerJarPath == "" {
		return DefaultServerJarPath
	}
	return p.ServerJarPath
}

// DataFor returns the data table for side.
func (p *InstallProfile) DataFor(side string) map[string]string {
	out := make(map[string]string, len(p.Data))
	for k, v := range p.Data {
		out[k] = v.ForSide(side)
	}
	return out
}

// ProcessorsFor returns the steps that run on side, in order.
func (p *InstallProfile) ProcessorsFor(side string) []Processor {
	var out []Processor
	for _, proc := range p.Processors {
		if proc.AppliesTo(side) {
			out = append(out, proc)
		}
	}
	return out
}

// DataKeys returns data keys sorted.
func (p *InstallProfile) DataKeys() []string {
	keys := make([]string, 0, len(p.Data))
	for k := range p.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
