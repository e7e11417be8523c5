// Package cli implements the ocpp-sniffer command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/ocpp-sniffer/internal/config"
	"github.com/tjfontaine/ocpp-sniffer/internal/logging"
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ocpp-sniffer",
		Short: "Passive OCPP 1.6 traffic sniffer",
		Long: `ocpp-sniffer accepts OCPP 1.6 JSON WebSocket connections from charge points,
records every frame to an append-only JSON lines log and never replies.

Use "query" to filter the log offline and "decode" to inspect a single frame.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (default: ./config.yaml if present)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newServeCommand(), newQueryCommand(), newDecodeCommand())
	return root
}

// loadConfig reads the file named by --config, or the default file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// loadConfigOrDefault is loadConfig for commands that can run without one.
func loadConfigOrDefault(cmd *cobra.Command) *config.Config {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not load config: %v\n", err)
		return config.Default()
	}
	return cfg
}

// newLogger writes structured logs to stderr; stdout carries command output.
func newLogger(cmd *cobra.Command, cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	name := cfg.Logging.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		name = flag
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return logging.New(w, level, cfg.Logging.Format), nil
}
