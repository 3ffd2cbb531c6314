package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bavena95/portal-creditos/internal/config"
	"github.com/bavena95/portal-creditos/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// logFile is the optional JSON log copy opened from telemetry.log_file.
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Portal de Créditos: credit-offer intake portal and admin dashboard",
	Long: `portal serves the public credit-offer wizard, receives applications with
their supporting documents, and hosts the admin dashboard used to review them.

Infrastructure (Postgres schema, NATS stream, object storage bucket, Redis) is
provisioned by the bootstrap command or on server start.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over value in config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		}

		var extra []io.Writer
		if cfg.Telemetry.LogFile != "" {
			logFile, err = os.OpenFile(cfg.Telemetry.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
			extra = append(extra, logFile)
		}
		slog.SetDefault(telemetry.NewLogger(cfg.Telemetry.LogLevel, os.Stdout, extra...))
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(offersCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) {
	slog.SetDefault(telemetry.NewLogger(level, os.Stdout))
}
