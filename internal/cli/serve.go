package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/ocpp-sniffer/internal/capture"
	"github.com/tjfontaine/ocpp-sniffer/internal/runtime"
	"github.com/tjfontaine/ocpp-sniffer/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept charge point connections and record their frames",
		Long: `Starts the capture listener (default ws://0.0.0.0:9000, subprotocol ocpp1.6)
and the admin listener with /healthz, /metrics and /api/v1/events.

Every inbound frame is decoded and appended to the event log. A short
summary of each frame is printed to stdout.`,
		Example: `  ocpp-sniffer serve
  ocpp-sniffer serve --config sniffer.yaml --quiet
  OCPP_SERVER__PORT=9100 OCPP_STORAGE__LOG_PATH=/var/log/ocpp.log ocpp-sniffer serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().Bool("quiet", false, "do not print frame summaries to stdout")
	cmd.Flags().Bool("no-color", false, "disable colored console output")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer(cmd.ErrOrStderr(), logger)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	opts := append([]runtime.Option{runtime.WithLogger(logger)}, runtime.OptionsFromConfig(cfg)...)
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		noColor, _ := cmd.Flags().GetBool("no-color")
		out := cmd.OutOrStdout()
		useColor := !noColor && !color.NoColor && out == os.Stdout
		opts = append(opts, runtime.WithObserver(capture.NewConsole(out, useColor)))
	}

	sniffer, err := runtime.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer sniffer.Close()

	logger.Info("sniffer starting",
		slog.String("capture_addr", cfg.Server.CaptureAddr()),
		slog.String("admin_addr", cfg.Server.AdminAddr()),
		slog.String("storage", cfg.Storage.Type),
		slog.String("log_path", cfg.Storage.LogPath),
	)

	if err := sniffer.Run(cmd.Context()); err != nil {
		return err
	}
	logger.Info("sniffer shutdown complete")
	return nil
}
