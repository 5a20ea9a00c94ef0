package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cloudloader/cloudinstaller/internal/install"
	"github.com/cloudloader/cloudinstaller/internal/observability"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	otelobs "github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/observability/receipt"
)

var extractCmd = &cobra.Command{
	Use:   "extract --installer <jar> --target <dir>",
	Short: "Extract the bundled artifact from an installer",
	Long: `Extract copies the artifact the install profile names as its path out of
the installer archive into an existing directory. No libraries are fetched and no
processors run.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

var (
	extractTargetFlag    string
	extractInstallerFlag string
)

func init() {
	extractCmd.Flags().StringVarP(&extractTargetFlag, "target", "t", ".", "Existing directory to extract into")
	extractCmd.Flags().StringVarP(&extractInstallerFlag, "installer", "i", "", "Path to the installer archive")
	_ = extractCmd.MarkFlagRequired("installer")
}

// GetExtractCmd export
func GetExtractCmd() *cobra.Command {
	return extractCmd
}

func runExtract(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "cloudinstaller extract", os.Args[1:])
	var receiptOpts []receipt.Option
	defer func() {
		_ = sess.Finish(err, receiptOpts...)
	}()

	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.StartSpan(ctx, "cloudinstaller.extract",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "extract"),
		attribute.String(otelobs.AttrTarget, extractTargetFlag),
	)
	defer func() { otelobs.EndSpan(span, err) }()

	log.Event(ctx, "extract.start", nil)
	defer func() {
		log.Event(ctx, "extract.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus(err),
		})
	}()

	src, err := openSource(extractInstallerFlag, "")
	if err != nil {
		return err
	}
	defer src.Close()
	receiptOpts = append(receiptOpts,
		receipt.WithProfile(src.profilePath, src.profile.Version),
		receipt.WithInstall(receipt.InstallSummary{Action: "extract", Target: extractTargetFlag}),
	)

	out := cmd.OutOrStdout()
	action, err := install.ActionByName("extract", src.deps(installConfig(settings), progressFor(out, log, settings.Debug)))
	if err != nil {
		return err
	}
	if err := action.Run(ctx, extractTargetFlag, src.installer); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s✓ %s%s\n", colorGreen, action.SuccessMessage(), colorReset)
	return nil
}
