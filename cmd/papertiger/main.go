// Command papertiger runs the payments API mock server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EnaiaInc/paper-tiger/pkg/config"
	"github.com/EnaiaInc/paper-tiger/pkg/logging"
	"github.com/EnaiaInc/paper-tiger/pkg/server"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "papertiger",
		Short: "A stateful mock of a commercial payments API",
	}
	root.AddCommand(newServeCmd(), newVersionCmd(), newValidateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
		logLokiURL string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mock server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = logFormat
			}
			if cmd.Flags().Changed("log-loki-url") {
				cfg.Logging.LokiURL = logLokiURL
			}

			log := logging.New(logging.Config{
				Level:      logging.ParseLevel(cfg.Logging.Level),
				Format:     logging.ParseFormat(cfg.Logging.Format),
				LokiURL:    cfg.Logging.LokiURL,
				LokiLabels: cfg.Logging.LokiLabels,
			})

			srv := server.New(cfg, server.WithLogger(log))
			if err := srv.Start(); err != nil {
				return fmt.Errorf("starting server: %w", err)
			}
			log.Info("papertiger: ready", "addr", srv.Addr())

			waitForSignal()

			return srv.Stop()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	cmd.Flags().StringVar(&logLokiURL, "log-loki-url", "", "Loki push endpoint to additionally ship logs to")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "papertiger %s (commit %s, built %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a config file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	}
}
