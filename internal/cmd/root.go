// Package cmd implements the safeops command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/safeops/internal/otel"
)

var tracer = otel.Tracer("github.com/dativo-io/safeops/internal/cmd")

// Set via -ldflags "-X github.com/dativo-io/safeops/internal/cmd.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
	noColor   bool

	otelShutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "safeops",
	Short: "Escalation decisions for site safety detections",
	Long: `SafeOps turns per-frame safety-violation detections into auditable responses.

For each frame it resolves every detection to a first-line action, asks the
reasoning service whether to escalate, and pages the supervisor when it must.
Action plans and policy recommendations are drafted alongside, and every
outcome lands in the audit logs and the signed evidence store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		if noColor {
			color.NoColor = true
		}
		return startTelemetry()
	},
}

// startTelemetry enables tracing and metrics for --otel, -v or
// SAFEOPS_OTEL_ENABLED=true. Exports go to stderr next to the logs.
func startTelemetry() error {
	enabled := otelFlag || verbose || os.Getenv("SAFEOPS_OTEL_ENABLED") == "true"
	shutdown, err := otel.Setup(otel.Options{
		ServiceName: "safeops",
		Version:     resolvedVersion(),
		Enabled:     enabled,
	})
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}
	otelShutdown = shutdown
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./safeops.config.yaml or ~/.safeops/safeops.config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging and telemetry")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	pf.BoolVar(&otelFlag, "otel", false, "export traces and metrics to stderr")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	for key, flag := range map[string]string{
		"verbose":    "verbose",
		"otel":       "otel",
		"log_level":  "log-level",
		"log_format": "log-format",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
}

// initConfig points viper at the config file; a missing file is fine.
// SAFEOPS_* env binding and defaults belong to the config package.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".safeops"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("safeops.config")
		viper.SetConfigType("yaml")
	}
	_ = viper.ReadInConfig()
}

// Execute runs the CLI and flushes telemetry before returning.
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	return err
}
