// Package artifact resolves library coordinates (group:name:version[:classifier][@ext])
// into canonical repository paths and parses the tagged values used in install manifests.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultExtension is used when a descriptor carries no @ext suffix.
const DefaultExtension = "jar"

// ErrMalformedDescriptor is returned for descriptors missing group, name or version.
var ErrMalformedDescriptor = errors.New("malformed artifact descriptor")

// MalformedDescriptorError names the offending descriptor.
type MalformedDescriptorError struct {
	Descriptor string
	Reason     string
}

func (e *MalformedDescriptorError) Error() string {
	return fmt.Sprintf("malformed artifact descriptor %q: %s", e.Descriptor, e.Reason)
}

func (e *MalformedDescriptorError) Unwrap() error { return ErrMalformedDescriptor }

// Coordinate is an immutable artifact identity. The zero value is not valid; use Parse.
type Coordinate struct {
	group      string
	name       string
	version    string
	classifier string
	ext        string

	// derived once in Parse
	descriptor string
	file       string
	path       string
}

// Parse splits a descriptor of the form group:name:version[:classifier][@extension].
func Parse(descriptor string) (Coordinate, error) {
	pts := strings.Split(descriptor, ":")
	if len(pts) < 3 {
		return Coordinate{}, &MalformedDescriptorError{
			Descriptor: descriptor,
			Reason:     fmt.Sprintf("expected at least 3 ':'-separated segments, got %d", len(pts)),
		}
	}

	c := Coordinate{descriptor: descriptor, ext: DefaultExtension}

	last := len(pts) - 1
	if idx := strings.IndexByte(pts[last], '@'); idx != -1 {
		c.ext = pts[last][idx+1:]
		pts[last] = pts[last][:idx]
	}

	c.group = pts[0]
	c.name = pts[1]
	c.version = pts[2]
	if len(pts) > 3 {
		c.classifier = pts[3]
	}

	switch {
	case c.group == "":
		return Coordinate{}, &MalformedDescriptorError{Descriptor: descriptor, Reason: "empty group"}
	case c.name == "":
		return Coordinate{}, &MalformedDescriptorError{Descriptor: descriptor, Reason: "empty name"}
	case c.version == "":
		return Coordinate{}, &MalformedDescriptorError{Descriptor: descriptor, Reason: "empty version"}
	case c.ext == "":
		return Coordinate{}, &MalformedDescriptorError{Descriptor: descriptor, Reason: "empty extension"}
	}

	c.file = c.name + "-" + c.version
	if c.classifier != "" {
		c.file += "-" + c.classifier
	}
	c.file += "." + c.ext

	c.path = strings.ReplaceAll(c.group, ".", "/") + "/" + c.name + "/" + c.version + "/" + c.file

	return c, nil
}

// MustParse is Parse for known-good descriptors. It panics on error.
func MustParse(descriptor string) Coordinate {
	c, err := Parse(descriptor)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Coordinate) Group() string      { return c.group }
func (c Coordinate) Name() string       { return c.name }
func (c Coordinate) Version() string    { return c.version }
func (c Coordinate) Classifier() string { return c.classifier }
func (c Coordinate) Extension() string  { return c.ext }
func (c Coordinate) Descriptor() string { return c.descriptor }

// FileName is name-version[-classifier].ext
func (c Coordinate) FileName() string { return c.file }

// Path is the repository-relative path, always '/'-separated.
func (c Coordinate) Path() string { return c.path }

// IsZero reports whether c was never parsed.
func (c Coordinate) IsZero() bool { return c.descriptor == "" }

func (c Coordinate) String() string { return c.descriptor }

// LocalPath joins baseDir with the coordinate's path using the host separator.
func (c Coordinate) LocalPath(baseDir string) string {
	return filepath.Join(baseDir, filepath.FromSlash(c.path))
}

// MarshalJSON writes the descriptor string.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(c.descriptor)
}

// UnmarshalJSON accepts a descriptor string or null.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Coordinate{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("artifact descriptor must be a string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
