package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cloudloader/cloudinstaller/internal/differ"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/observability"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	otelobs "github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/observability/receipt"
)

// ErrChangesDetected is returned when diff finds changes at or above --fail-on.
var ErrChangesDetected = errors.New("profile changes detected")

// diffCmd compares two install profiles
var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Compare two install profiles",
	Long: `Diff compares two install profiles and reports what changed in
human-readable terms: library versions and checksums, processor arguments and
outputs, data entries, optional mods and top-level fields.

Each argument is either an install_profile.json or an installer archive.

Exit status is 1 when a change at or above --fail-on is found.

Examples:
  cloudinstaller diff old/install_profile.json new/install_profile.json
  cloudinstaller diff loader-1.0-installer.jar loader-1.1-installer.jar --fail-on=moderate
  cloudinstaller diff a.jar b.jar --format=json`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var (
	diffFailOnFlag string
	diffFormatFlag string
)

func init() {
	diffCmd.Flags().StringVar(&diffFailOnFlag, "fail-on", "critical", "Severity threshold for failure: never, critical, moderate, or info")
	diffCmd.Flags().StringVar(&diffFormatFlag, "format", "text", "Output format: text or json")
}

// GetDiffCmd returns the diff command
func GetDiffCmd() *cobra.Command {
	return diffCmd
}

func runDiff(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "cloudinstaller diff", os.Args[1:])
	var receiptOpts []receipt.Option
	defer func() {
		_ = sess.Finish(err, receiptOpts...)
	}()

	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.StartSpan(ctx, "cloudinstaller.diff",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "diff"),
	)
	defer func() { otelobs.EndSpan(span, err) }()

	log.Event(ctx, "diff.start", map[string]any{"old": args[0], "new": args[1]})
	defer func() {
		log.Event(ctx, "diff.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus(err),
		})
	}()

	failOn, err := ParseFailOnLevel(diffFailOnFlag)
	if err != nil {
		return err
	}
	if diffFormatFlag != "text" && diffFormatFlag != "json" {
		return fmt.Errorf("invalid format: %s (use text or json)", diffFormatFlag)
	}

	oldProfile, err := loadAnyProfile(args[0])
	if err != nil {
		return err
	}
	newProfile, err := loadAnyProfile(args[1])
	if err != nil {
		return err
	}

	result, err := differ.Compare(oldProfile, newProfile)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}
	receiptOpts = append(receiptOpts,
		receipt.WithProfile(args[1], newProfile.Version),
		receipt.WithDiff(len(result.Diffs), result.Summary()),
	)

	report := BuildDiffReport(args[0], args[1], result, failOn)
	out := cmd.OutOrStdout()
	if diffFormatFlag == "json" {
		data, err := FormatDiffJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprint(out, FormatDiffText(report))
	}

	if report.Outcome == "FAIL" {
		return fmt.Errorf("%w: %s", ErrChangesDetected, result.Summary())
	}
	return nil
}

// loadAnyProfile reads a profile json, or the profile inside an installer archive.
func loadAnyProfile(path string) (*models.InstallProfile, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		p, err := models.LoadProfile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return p, nil
	}
	src, err := openSource(path, "")
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return src.profile, nil
}
