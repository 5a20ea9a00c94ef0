package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cloudloader/cloudinstaller/internal/differ"
)

func TestParseFailOnLevel(t *testing.T) {
	tests := []struct {
		input     string
		expected  FailOnLevel
		shouldErr bool
	}{
		{"never", FailOnNever, false},
		{"critical", FailOnCritical, false},
		{"CRITICAL", FailOnCritical, false},
		{"moderate", FailOnModerate, false},
		{"Moderate", FailOnModerate, false},
		{"info", FailOnInfo, false},
		{"invalid", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFailOnLevel(tt.input)
			if tt.shouldErr && err == nil {
				t.Errorf("ParseFailOnLevel(%q) expected error, got nil", tt.input)
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("ParseFailOnLevel(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseFailOnLevel(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFailOnLevel_ShouldFail(t *testing.T) {
	tests := []struct {
		level    FailOnLevel
		severity differ.SeverityLevel
		expected bool
	}{
		{FailOnNever, differ.SeverityCritical, false},
		{FailOnCritical, differ.SeverityCritical, true},
		{FailOnCritical, differ.SeverityModerate, false},
		{FailOnCritical, differ.SeveritySafe, false},
		{FailOnModerate, differ.SeverityCritical, true},
		{FailOnModerate, differ.SeverityModerate, true},
		{FailOnModerate, differ.SeveritySafe, false},
		{FailOnInfo, differ.SeveritySafe, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level)+"_"+differ.SeverityString(tt.severity), func(t *testing.T) {
			if got := tt.level.ShouldFail(tt.severity); got != tt.expected {
				t.Errorf("FailOnLevel(%q).ShouldFail(%d) = %v, want %v", tt.level, tt.severity, got, tt.expected)
			}
		})
	}
}

func testResult() *differ.Result {
	return &differ.Result{
		HasChanges: true,
		Diffs: []differ.ItemDiff{
			{Kind: differ.KindLibrary, Key: "com.example:lib", DiffType: differ.DiffTypeChanged,
				Translations: []string{"Version changed: 2.0 -> 2.1.", "⚠️  CRITICAL: Checksum changed."}},
			{Kind: differ.KindData, Key: "EXTRA", DiffType: differ.DiffTypeAdded,
				Translations: []string{"Data entry added."}},
			{Kind: differ.KindOptional, Key: "jei", DiffType: differ.DiffTypeChanged,
				Translations: []string{"Documentation update: desc changed."}},
		},
	}
}

func TestBuildDiffReport(t *testing.T) {
	t.Run("fail on critical with critical change", func(t *testing.T) {
		report := BuildDiffReport("a.json", "b.json", testResult(), FailOnCritical)
		if report.Outcome != "FAIL" {
			t.Errorf("Outcome = %s, want FAIL", report.Outcome)
		}
		want := DiffCounts{Critical: 1, Moderate: 1, Info: 1, Total: 3}
		if report.Summary != want {
			t.Errorf("Summary = %+v, want %+v", report.Summary, want)
		}
		if report.Changes[0].Severity != "critical" || report.Changes[0].Kind != "library" {
			t.Errorf("Changes[0] = %+v", report.Changes[0])
		}
	})

	t.Run("never passes", func(t *testing.T) {
		report := BuildDiffReport("a.json", "b.json", testResult(), FailOnNever)
		if report.Outcome != "PASS" {
			t.Errorf("Outcome = %s, want PASS", report.Outcome)
		}
	})

	t.Run("nil result passes", func(t *testing.T) {
		report := BuildDiffReport("a.json", "b.json", nil, FailOnInfo)
		if report.Outcome != "PASS" || report.Summary.Total != 0 {
			t.Errorf("report = %+v", report)
		}
		if report.Changes == nil {
			t.Error("Changes should be an empty slice so json has []")
		}
	})
}

func TestFormatDiffJSON(t *testing.T) {
	report := BuildDiffReport("a.json", "b.json", testResult(), FailOnModerate)
	output, err := FormatDiffJSON(report)
	if err != nil {
		t.Fatalf("FormatDiffJSON error: %v", err)
	}

	var parsed DiffReport
	if err := json.Unmarshal(output, &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if parsed.Outcome != "FAIL" {
		t.Errorf("Parsed Outcome = %s, want FAIL", parsed.Outcome)
	}
	if len(parsed.Changes) != 3 {
		t.Errorf("Parsed %d changes, want 3", len(parsed.Changes))
	}
}

func TestFormatDiffText(t *testing.T) {
	output := FormatDiffText(BuildDiffReport("old.json", "new.json", testResult(), FailOnCritical))

	for _, want := range []string{
		"FAIL",
		"old.json",
		"CRITICAL (1)",
		"MODERATE (1)",
		"INFO (1)",
		"[~] library com.example:lib",
		"[+] data EXTRA",
		"Checksum changed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	empty := FormatDiffText(BuildDiffReport("old.json", "new.json", &differ.Result{}, FailOnCritical))
	if !strings.Contains(empty, "No changes detected") {
		t.Errorf("empty diff output = %q", empty)
	}
}
