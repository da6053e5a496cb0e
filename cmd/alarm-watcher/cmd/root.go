package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jorgeroden/plc-alarm-watcher/internal/config"
	"github.com/jorgeroden/plc-alarm-watcher/internal/logger"
	"github.com/jorgeroden/plc-alarm-watcher/internal/service/watcher"
	"github.com/jorgeroden/plc-alarm-watcher/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel stores the desired logging verbosity.
	logLevel string

	// rootCmd represents the base command that runs the watcher.
	rootCmd = &cobra.Command{
		Use:   "alarm-watcher",
		Short: "Watch the PLC alarms page and notify new alarms.",
		Long: `Background service that polls the pellet boiler PLC alarms page,
journals every newly appeared alarm to a CSV file and sends one Telegram
notification per new alarm.

Settings come from a YAML file and environment variables (environment wins);
required fields are the PLC endpoint and credentials plus the Telegram bot
token and chat. The process runs until terminated and is meant to live under
a supervisor that restarts it on crash.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return watcher.Run(ctx, &watcher.Options{
				ConfigPath: configPath,
			})
		},
	}
)

// Execute runs the alarm-watcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (debug, info, warn, error)")
}
