package differ

import (
	"fmt"
	"strings"
)

// SeverityString to lowercase
func SeverityString(s SeverityLevel) string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityModerate:
		return "moderate"
	case SeveritySafe:
		return "info"
	default:
		return "unknown"
	}
}

// Summary counts items by diff type, e.g. "2 added, 1 changed".
func (r *Result) Summary() string {
	if !r.HasChanges {
		return "no changes"
	}
	counts := map[DiffType]int{}
	for _, d := range r.Diffs {
		counts[d.DiffType]++
	}
	var parts []string
	for _, t := range []DiffType{DiffTypeAdded, DiffTypeRemoved, DiffTypeChanged} {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
		}
	}
	return strings.Join(parts, ", ")
}
