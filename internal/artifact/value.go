package artifact

import (
	"fmt"
	"path/filepath"
)

// Kind tags a manifest value.
type Kind int

const (
	// KindToken is a bare string subject to token substitution (or, for data entries,
	// a path inside the installer archive).
	KindToken Kind = iota
	// KindArtifact is a "[group:name:version]" reference to a library.
	KindArtifact
	// KindLiteral is a "'text'" value copied verbatim without its quotes.
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindArtifact:
		return "artifact"
	case KindLiteral:
		return "literal"
	default:
		return "token"
	}
}

// Value is one parsed manifest value.
type Value struct {
	Kind     Kind
	Raw      string
	Artifact Coordinate // KindArtifact only
	Text     string     // KindLiteral: unquoted text; KindToken: Raw
}

// ParseValue classifies s by its sigils. Only the artifact form can fail.
func ParseValue(s string) (Value, error) {
	n := len(s)
	switch {
	case n >= 2 && s[0] == '[' && s[n-1] == ']':
		c, err := Parse(s[1 : n-1])
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindArtifact, Raw: s, Artifact: c}, nil
	case n >= 2 && s[0] == '\'' && s[n-1] == '\'':
		return Value{Kind: KindLiteral, Raw: s, Text: s[1 : n-1]}, nil
	default:
		return Value{Kind: KindToken, Raw: s, Text: s}, nil
	}
}

// Replacer expands tokens in a raw string.
type Replacer func(raw string) (string, error)

// Resolve turns v into its final string. Artifacts become absolute paths under
// libraryRoot; literal and token values are handed to replace, which owns quote
// handling so that escapes inside literals behave the same as everywhere else.
func (v Value) Resolve(libraryRoot string, replace Replacer) (string, error) {
	switch v.Kind {
	case KindArtifact:
		p, err := filepath.Abs(v.Artifact.LocalPath(libraryRoot))
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", v.Raw, err)
		}
		return p, nil
	default:
		if replace == nil {
			if v.Kind == KindLiteral {
				return v.Text, nil
			}
			return v.Raw, nil
		}
		return replace(v.Raw)
	}
}
