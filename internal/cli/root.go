package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudloader/cloudinstaller/internal/config"
	"github.com/cloudloader/cloudinstaller/internal/install"
	"github.com/cloudloader/cloudinstaller/internal/observability"
	"github.com/cloudloader/cloudinstaller/internal/observability/logging"
	otelobs "github.com/cloudloader/cloudinstaller/internal/observability/otel"
	"github.com/cloudloader/cloudinstaller/internal/observability/receipt"
	"github.com/cloudloader/cloudinstaller/internal/version"
)

// ANSI color codes
const (
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// Process exit codes.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitCanceled = 130
)

var rootCmd = &cobra.Command{
	Use:   "cloudinstaller",
	Short: "Headless installer for modded game servers",
	Long: `cloudinstaller reads an installer archive (or a bare install profile),
fetches the server jar and every library it needs, then runs the profile's
processors to produce a ready-to-start server directory.

Settings are read from cloudinstaller.yaml, then CLOUDINSTALLER_* environment
variables, then flags.`,
	Version:           version.BuildVersion(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	configFlag       string
	logFormatFlag    string
	logLevelFlag     string
	logOutputFlag    string
	otelFlag         bool
	otelEndpointFlag string
	otelProtocolFlag string
	otelInsecureFlag bool
	receiptFlag      string
	receiptModeFlag  string
)

// settings is the merged configuration, valid once setup has run.
var settings = config.Default()

// teardown runs in reverse order after the command returns.
var teardown []func()

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "Path to a config file (default: ./"+config.DefaultFileName+" if present)")
	pf.StringVar(&logFormatFlag, "log-format", "", "Log format: pretty, jsonl or none")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&logOutputFlag, "log-output", "", "Log destination: stderr, stdout or a file path")
	pf.BoolVar(&otelFlag, "otel", false, "Export traces over OTLP")
	pf.StringVar(&otelEndpointFlag, "otel-endpoint", "", "OTLP endpoint (default depends on protocol)")
	pf.StringVar(&otelProtocolFlag, "otel-protocol", otelobs.ProtocolHTTP, "OTLP protocol: otlphttp or otlpgrpc")
	pf.BoolVar(&otelInsecureFlag, "otel-insecure", false, "Disable TLS for the OTLP exporter")
	pf.StringVar(&receiptFlag, "receipt", "", "Write a JSON receipt of this run to the given path")
	pf.StringVar(&receiptModeFlag, "receipt-mode", string(receipt.ModeOverwrite), "Receipt mode: overwrite or append")

	rootCmd.AddCommand(GetInstallCmd())
	rootCmd.AddCommand(GetExtractCmd())
	rootCmd.AddCommand(GetDiffCmd())
	rootCmd.AddCommand(GetResolveCmd())
}

// Execute runs the command line and returns the process exit code.
// SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	runTeardown()

	code := ExitCode(err)
	switch code {
	case ExitCanceled:
		fmt.Fprintln(os.Stderr, "Installation canceled")
	case ExitFailure:
		fmt.Fprintf(os.Stderr, "%sError:%s %v\n", colorRed, colorReset, err)
	}
	return code
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, install.ErrCanceled), errors.Is(err, context.Canceled):
		return ExitCanceled
	default:
		return ExitFailure
	}
}

// setup merges config, env and flags, then puts the logger, tracer, receipt
// writer and op id into the command context.
func setup(cmd *cobra.Command, _ []string) error {
	f, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if err := f.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	applyGlobalFlags(cmd, f)
	settings = f

	ctx := observability.WithOpID(cmd.Context())

	logCfg := logging.DefaultConfig()
	if f.Log.Format != "" {
		logCfg.Format = f.Log.Format
	}
	if f.Log.Level != "" {
		logCfg.Level = f.Log.Level
	}
	if f.Log.Output != "" {
		logCfg.Output = f.Log.Output
	}
	log, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	teardown = append(teardown, func() { _ = log.Close() })
	ctx = logging.WithLogger(ctx, log)

	if f.Otel.Enabled {
		oc := otelobs.DefaultConfig()
		oc.Enabled = true
		oc.Endpoint = f.Otel.Endpoint
		oc.Insecure = f.Otel.Insecure
		if f.Otel.Protocol != "" {
			oc.Protocol = f.Otel.Protocol
		}
		h, err := otelobs.Init(ctx, oc)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		teardown = append(teardown, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.Shutdown(sctx); err != nil {
				log.Warn("otel", "shutdown failed", "error", err)
			}
		})
		ctx = otelobs.WithHandle(ctx, h)
	}

	if receiptFlag != "" {
		w, err := receipt.NewWriter(receiptFlag, receiptModeFlag)
		if err != nil {
			return err
		}
		teardown = append(teardown, func() { _ = w.Close() })
		ctx = receipt.WithWriter(ctx, w)
	}

	cmd.SetContext(ctx)
	return nil
}

// applyGlobalFlags lets explicitly set persistent flags win over file and env.
func applyGlobalFlags(cmd *cobra.Command, f *config.File) {
	flags := cmd.Flags()
	if flags.Changed("log-format") {
		f.Log.Format = logFormatFlag
	}
	if flags.Changed("log-level") {
		f.Log.Level = logLevelFlag
	}
	if flags.Changed("log-output") {
		f.Log.Output = logOutputFlag
	}
	if flags.Changed("otel") {
		f.Otel.Enabled = otelFlag
	}
	if flags.Changed("otel-endpoint") {
		f.Otel.Endpoint = otelEndpointFlag
	}
	if flags.Changed("otel-protocol") {
		f.Otel.Protocol = otelProtocolFlag
	}
	if flags.Changed("otel-insecure") {
		f.Otel.Insecure = otelInsecureFlag
	}
}

func runTeardown() {
	for i := len(teardown) - 1; i >= 0; i-- {
		teardown[i]()
	}
	teardown = nil
}

// resultStatus is the value of the "result" field on *.complete events.
func resultStatus(err error) string {
	switch ExitCode(err) {
	case ExitSuccess:
		return receipt.StatusSuccess
	case ExitCanceled:
		return receipt.StatusCanceled
	default:
		return receipt.StatusFail
	}
}
