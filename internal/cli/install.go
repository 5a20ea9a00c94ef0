package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cloudloader/cloudinstaller/internal/config"
	"github.com/cloudloader/cloudinstaller/internal/install"
	"github.com/cloudloader/cloudinstaller/internal/libraries"
	"github.com/cloudloader/cloudinstaller/internal/models"
	"github.com/cloudloader/cloudinstaller/internal/observability"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	otelobs "github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/observability/receipt"
	"github.com/cloudloader/cloudinstaller/internal/optionals"
)

// installCmd installs a server
var installCmd = &cobra.Command{
	Use:   "install --target <dir> (--installer <jar> | --profile <json>)",
	Short: "Install a server into a directory",
	Long: `Install downloads the server jar and every library named by the install
profile, then runs the profile's processors in order.

Libraries already present with a matching checksum are kept. Processors whose
outputs already match their declared hashes are skipped, so re-running an
install is cheap.

Examples:
  # Install from an installer archive
  cloudinstaller install --installer loader-installer.jar --target ./server

  # Reuse a local repository and never touch the network
  cloudinstaller install --installer loader-installer.jar --target ./server \
      --source-dir ~/.m2/repository --offline

  # Enable an optional mod and select the rest with an expression
  cloudinstaller install --installer loader-installer.jar --target ./server \
      --optional jei=true --select 'default && side == "server"'`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var (
	installTargetFlag    string
	installInstallerFlag string
	installProfileFlag   string
	installSourceDirFlag []string
	installMirrorFlag    string
	installOfflineFlag   bool
	installDebugFlag     bool
	installKeepTempFlag  bool
	installOptionalFlag  []string
	installSelectFlag    string
	installJavaFlag      string
	installJVMArgFlag    []string
)

func init() {
	f := installCmd.Flags()
	f.StringVarP(&installTargetFlag, "target", "t", ".", "Directory to install into")
	f.StringVarP(&installInstallerFlag, "installer", "i", "", "Path to the installer archive")
	f.StringVarP(&installProfileFlag, "profile", "p", "", "Path to an install_profile.json (overrides the one in the installer)")
	f.StringSliceVar(&installSourceDirFlag, "source-dir", nil, "Local repository searched before downloading (repeatable)")
	f.StringVar(&installMirrorFlag, "mirror", "", "Mirror URL (https://, oci:// or s3://) replacing the profile's mirror")
	f.BoolVar(&installOfflineFlag, "offline", false, "Never download; use only local sources and the installer")
	f.BoolVar(&installDebugFlag, "debug", false, "Verbose progress and keep invalid processor outputs")
	f.BoolVar(&installKeepTempFlag, "keep-temp", false, "Keep the temporary data directory")
	f.StringSliceVar(&installOptionalFlag, "optional", nil, "Enable or disable an optional mod: NAME=true|false (repeatable)")
	f.StringVar(&installSelectFlag, "select", "", "CEL expression selecting optional mods (vars: name, artifact, side, default)")
	f.StringVar(&installJavaFlag, "java", "", "Java executable used for processors (default: $JAVA_HOME/bin/java or PATH)")
	f.StringSliceVar(&installJVMArgFlag, "jvm-arg", nil, "Extra JVM argument for processors (repeatable)")
}

// GetInstallCmd export
func GetInstallCmd() *cobra.Command {
	return installCmd
}

func runInstall(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "cloudinstaller install", os.Args[1:])
	var receiptOpts []receipt.Option
	defer func() {
		_ = sess.Finish(err, receiptOpts...)
	}()

	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.StartSpan(ctx, "cloudinstaller.install",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "install"),
		attribute.String(otelobs.AttrTarget, installTargetFlag),
	)
	defer func() { otelobs.EndSpan(span, err) }()

	log.Event(ctx, "install.start", map[string]any{"target": installTargetFlag})
	defer func() {
		log.Event(ctx, "install.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus(err),
		})
	}()

	applyInstallFlags(cmd, settings)
	cfg := installConfig(settings)

	src, err := openSource(installInstallerFlag, installProfileFlag)
	if err != nil {
		return err
	}
	defer src.Close()
	receiptOpts = append(receiptOpts, receipt.WithProfile(src.profilePath, src.profile.Version))

	selector, err := selectorFor(cmd, src.profile, cfg.Side)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	deps := src.deps(cfg, progressFor(out, log, cfg.Debug))
	deps.Enabled = selector.Enabled

	action, err := install.ActionByName("server", deps)
	if err != nil {
		return err
	}
	if msg := action.PathError(installTargetFlag); msg != "" {
		fmt.Fprintf(out, "%s%s%s\n", colorYellow, msg, colorReset)
	}

	fmt.Fprintf(out, "Installing %s (%s) into %s\n", src.profile.Version, cfg.Side, installTargetFlag)
	err = action.Run(ctx, installTargetFlag, src.installer)

	if s, ok := action.(interface{ Summary() install.Summary }); ok {
		receiptOpts = append(receiptOpts, receipt.WithInstall(installSummary(installTargetFlag, cfg.Side, s.Summary())))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s✓ %s%s\n", colorGreen, action.SuccessMessage(), colorReset)
	return nil
}

// applyInstallFlags overlays the install flags that were set explicitly.
func applyInstallFlags(cmd *cobra.Command, f *config.File) {
	flags := cmd.Flags()
	if flags.Changed("source-dir") {
		f.SourceDirs = installSourceDirFlag
	}
	if flags.Changed("mirror") {
		f.Mirror = installMirrorFlag
	}
	if flags.Changed("offline") {
		f.Offline = installOfflineFlag
	}
	if flags.Changed("debug") {
		f.Debug = installDebugFlag
	}
	if flags.Changed("keep-temp") {
		f.KeepTemp = installKeepTempFlag
	}
	if flags.Changed("select") {
		f.Select = installSelectFlag
	}
	if flags.Changed("java") {
		f.Java = installJavaFlag
	}
	if flags.Changed("jvm-arg") {
		f.JVMArgs = installJVMArgFlag
	}
}

// selectorFor merges config and --optional overrides. Flags win per name.
func selectorFor(cmd *cobra.Command, profile *models.InstallProfile, side string) (*optionals.Selector, error) {
	overrides := make(map[string]bool, len(settings.Optionals))
	for k, v := range settings.Optionals {
		overrides[k] = v
	}
	if cmd.Flags().Changed("optional") {
		parsed, err := optionals.ParseOverrides(installOptionalFlag)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			overrides[k] = v
		}
	}
	return optionals.NewSelector(settings.Select, side, profile.Optionals, overrides)
}

func installSummary(target, side string, s install.Summary) receipt.InstallSummary {
	r := receipt.InstallSummary{Action: "server", Target: target, Side: side}
	if s.Libraries != nil {
		r.LibrariesSatisfied = s.Libraries.Satisfied()
		r.LibrariesFetched = s.Libraries.Fetched()
		r.LibrariesSkipped = s.Libraries.Count(libraries.SourceDisabled)
		for _, o := range s.Libraries.Failed() {
			r.LibrariesFailed = append(r.LibrariesFailed, o.Name)
		}
	}
	if s.Processors != nil {
		r.ProcessorsExecuted = s.Processors.Executed
		r.ProcessorsSkipped = s.Processors.Skipped
	}
	return r
}
