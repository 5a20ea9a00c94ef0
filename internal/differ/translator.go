package differ

import (
	"fmt"
	"strings"

	"github.com/wI2L/jsondiff"

	"github.com/cloudloader/cloudinstaller/internal/artifact"
)

// Translate patches to english
func Translate(kind Kind, patches jsondiff.Patch) []string {
	if len(patches) == 0 {
		return nil
	}

	var translations []string
	seen := make(map[string]bool)

	for _, op := range patches {
		translation := translateOperation(kind, op)
		if translation != "" && !seen[translation] {
			seen[translation] = true
			translations = append(translations, translation)
		}
	}

	return translations
}

func translateOperation(kind Kind, op jsondiff.Operation) string {
	parts := strings.Split(strings.TrimPrefix(op.Path, "/"), "/")
	field := parts[0]

	switch kind {
	case KindLibrary:
		return translateLibrary(field, parts, op)
	case KindProcessor:
		return translateProcessor(field, op)
	case KindData:
		return fmt.Sprintf("%s value changed: %v -> %v.", titleCase(field), op.OldValue, op.Value)
	case KindOptional:
		return translateOptional(field)
	default:
		return translateProfile(field, op)
	}
}

// translateLibrary
func translateLibrary(field string, parts []string, op jsondiff.Operation) string {
	switch field {
	case "name":
		return fmt.Sprintf("Version changed: %s -> %s.", versionOf(op.OldValue), versionOf(op.Value))
	case "downloads":
		last := parts[len(parts)-1]
		switch {
		case op.Type != jsondiff.OperationReplace && len(parts) <= 2:
			return "Download info " + verb(op.Type) + "."
		case last == "sha1":
			return "⚠️  CRITICAL: Checksum changed."
		case last == "url":
			return "Download URL changed."
		case last == "path":
			return "Repository path changed."
		case last == "size":
			return "Size changed."
		}
		return "Download info modified."
	case "optional", "toggle":
		return "Optional toggle changed."
	case "embedded":
		return "Embedded flag changed."
	}
	return "Library modified."
}

// translateProcessor
func translateProcessor(field string, op jsondiff.Operation) string {
	switch field {
	case "jar":
		return fmt.Sprintf("Jar changed: %v -> %v.", op.OldValue, op.Value)
	case "classpath":
		if op.Type == jsondiff.OperationReplace {
			return "Classpath changed."
		}
		return "Classpath entry " + verb(op.Type) + "."
	case "args":
		return "Arguments changed."
	case "outputs":
		return "Expected outputs changed."
	case "sides":
		return "Sides changed."
	}
	return "Processor modified."
}

// translateOptional
func translateOptional(field string) string {
	switch field {
	case "desc", "url":
		return "Documentation update: " + field + " changed."
	case "default":
		return "Default selection changed."
	case "artifact", "maven":
		return titleCase(field) + " changed."
	}
	return "Optional modified."
}

// translateProfile
func translateProfile(field string, op jsondiff.Operation) string {
	switch field {
	case "minecraft":
		return fmt.Sprintf("⚠️  CRITICAL: Target version changed: %v -> %v.", op.OldValue, op.Value)
	case "version":
		return fmt.Sprintf("Version changed: %v -> %v.", op.OldValue, op.Value)
	case "welcome":
		return "Documentation update: welcome message changed."
	case "serverDownload":
		return "Server jar download changed."
	case "mirrorList":
		return "Mirror list changed."
	}
	return "Field '" + field + "' " + verb(op.Type) + "."
}

func verb(opType string) string {
	switch opType {
	case jsondiff.OperationAdd:
		return "added"
	case jsondiff.OperationRemove:
		return "removed"
	default:
		return "changed"
	}
}

func versionOf(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	c, err := artifact.Parse(s)
	if err != nil {
		return s
	}
	return c.Version()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func titleFor(kind Kind) string {
	switch kind {
	case KindData:
		return "Data entry"
	default:
		return titleCase(string(kind))
	}
}

// SeverityLevel 0=safe, 1=mod, 2=crit
type SeverityLevel int

const (
	SeveritySafe SeverityLevel = iota
	SeverityModerate
	SeverityCritical
)

// GetSeverity
func GetSeverity(translation string) SeverityLevel {
	lowerMsg := strings.ToLower(translation)

	// Critical changes (Red)
	if strings.Contains(translation, "⚠️") ||
		strings.Contains(translation, "CRITICAL") ||
		strings.Contains(lowerMsg, "removed") {
		return SeverityCritical
	}

	// Safe changes (Green)
	if strings.Contains(lowerMsg, "documentation") {
		return SeveritySafe
	}

	// Everything else is moderate (Yellow)
	return SeverityModerate
}

// Severity is the worst severity among the item's translations.
func (d ItemDiff) Severity() SeverityLevel {
	worst := SeveritySafe
	for _, t := range d.Translations {
		if s := GetSeverity(t); s > worst {
			worst = s
		}
	}
	return worst
}
