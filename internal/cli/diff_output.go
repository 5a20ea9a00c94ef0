package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudloader/cloudinstaller/internal/differ"
)

// FailOnLevel threshold for failure
type FailOnLevel string

const (
	FailOnNever    FailOnLevel = "never"
	FailOnCritical FailOnLevel = "critical"
	FailOnModerate FailOnLevel = "moderate"
	FailOnInfo     FailOnLevel = "info"
)

// ParseFailOnLevel from string
func ParseFailOnLevel(s string) (FailOnLevel, error) {
	switch strings.ToLower(s) {
	case "never":
		return FailOnNever, nil
	case "critical":
		return FailOnCritical, nil
	case "moderate":
		return FailOnModerate, nil
	case "info":
		return FailOnInfo, nil
	default:
		return "", fmt.Errorf("invalid fail-on level: %s (use never, critical, moderate, or info)", s)
	}
}

// ShouldFail checks limits
func (f FailOnLevel) ShouldFail(severity differ.SeverityLevel) bool {
	switch f {
	case FailOnNever:
		return false
	case FailOnCritical:
		return severity == differ.SeverityCritical
	case FailOnModerate:
		return severity >= differ.SeverityModerate
	case FailOnInfo:
		return true
	default:
		return severity == differ.SeverityCritical
	}
}

// DiffReport output structure
type DiffReport struct {
	Old     string       `json:"old"`
	New     string       `json:"new"`
	Summary DiffCounts   `json:"summary"`
	Changes []ChangeItem `json:"changes"`
	FailOn  string       `json:"failOn"`
	Outcome string       `json:"outcome"` // "PASS" or "FAIL"
}

// DiffCounts by severity
type DiffCounts struct {
	Critical int `json:"critical"`
	Moderate int `json:"moderate"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// ChangeItem is one changed library, processor, data entry or field set.
type ChangeItem struct {
	Kind     string   `json:"kind"`
	Key      string   `json:"key"`
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	Messages []string `json:"messages"`
}

// BuildDiffReport from a differ result
func BuildDiffReport(oldPath, newPath string, result *differ.Result, failOn FailOnLevel) *DiffReport {
	report := &DiffReport{
		Old:     oldPath,
		New:     newPath,
		Changes: []ChangeItem{},
		FailOn:  string(failOn),
		Outcome: "PASS",
	}
	if result == nil {
		return report
	}

	for _, d := range result.Diffs {
		sev := d.Severity()
		report.Changes = append(report.Changes, ChangeItem{
			Kind:     string(d.Kind),
			Key:      d.Key,
			Type:     string(d.DiffType),
			Severity: differ.SeverityString(sev),
			Messages: d.Translations,
		})

		switch sev {
		case differ.SeverityCritical:
			report.Summary.Critical++
		case differ.SeverityModerate:
			report.Summary.Moderate++
		default:
			report.Summary.Info++
		}
		report.Summary.Total++

		if failOn.ShouldFail(sev) {
			report.Outcome = "FAIL"
		}
	}
	return report
}

// FormatDiffText human readable
func FormatDiffText(report *DiffReport) string {
	var sb strings.Builder

	if report.Outcome == "PASS" {
		sb.WriteString(fmt.Sprintf("%sProfile diff: PASS%s (fail-on=%s)\n", colorGreen, colorReset, report.FailOn))
	} else {
		sb.WriteString(fmt.Sprintf("%sProfile diff: FAIL%s (fail-on=%s)\n", colorRed, colorReset, report.FailOn))
	}
	sb.WriteString(fmt.Sprintf("Old: %s\n", report.Old))
	sb.WriteString(fmt.Sprintf("New: %s\n\n", report.New))

	if report.Summary.Total == 0 {
		sb.WriteString(fmt.Sprintf("%s✓ No changes detected%s\n", colorGreen, colorReset))
		return sb.String()
	}

	groups := groupChangesBySeverity(report.Changes)
	for _, g := range []struct {
		name, title, color string
	}{
		{"critical", "CRITICAL", colorRed},
		{"moderate", "MODERATE", colorYellow},
		{"info", "INFO", ""},
	} {
		items := groups[g.name]
		if len(items) == 0 {
			continue
		}
		if g.color != "" {
			sb.WriteString(fmt.Sprintf("%s%s (%d)%s\n", g.color, g.title, len(items), colorReset))
		} else {
			sb.WriteString(fmt.Sprintf("%s (%d)\n", g.title, len(items)))
		}
		for _, c := range items {
			formatChangeItem(&sb, c, g.color)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// groupChangesBySeverity helper
func groupChangesBySeverity(changes []ChangeItem) map[string][]ChangeItem {
	groups := map[string][]ChangeItem{
		"critical": {},
		"moderate": {},
		"info":     {},
	}
	for _, c := range changes {
		groups[c.Severity] = append(groups[c.Severity], c)
	}
	for k := range groups {
		sort.SliceStable(groups[k], func(i, j int) bool {
			a, b := groups[k][i], groups[k][j]
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
			return a.Key < b.Key
		})
	}
	return groups
}

func formatChangeItem(sb *strings.Builder, c ChangeItem, color string) {
	icon := "~"
	switch c.Type {
	case string(differ.DiffTypeAdded):
		icon = "+"
	case string(differ.DiffTypeRemoved):
		icon = "-"
	}
	if color != "" {
		sb.WriteString(fmt.Sprintf("%s[%s] %s %s%s\n", color, icon, c.Kind, c.Key, colorReset))
	} else {
		sb.WriteString(fmt.Sprintf("[%s] %s %s\n", icon, c.Kind, c.Key))
	}
	for _, m := range c.Messages {
		sb.WriteString(fmt.Sprintf("    • %s\n", m))
	}
}

// FormatDiffJSON raw json
func FormatDiffJSON(report *DiffReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}
