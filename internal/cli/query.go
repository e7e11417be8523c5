package cli

import (
	"fmt"
	"iter"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
	"github.com/tjfontaine/ocpp-sniffer/internal/query"
	"github.com/tjfontaine/ocpp-sniffer/internal/storage/jsonl"
	"github.com/tjfontaine/ocpp-sniffer/internal/storage/sqlite"
)

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Filter and print recorded events",
		Long: `Reads the event log and prints the records matching every given filter,
in the order they were written. Lines that cannot be parsed are skipped.`,
		Example: `  ocpp-sniffer query --cp CP-001 --action StatusNotification
  ocpp-sniffer query --connector 1 --idtag ABC123
  ocpp-sniffer query --only-errors --output json
  ocpp-sniffer query --source sqlite --log ocpp.db --limit 20
  ocpp-sniffer query --cp CP-001 --follow`,
		Args: cobra.NoArgs,
		RunE: runQuery,
	}

	cmd.Flags().String("log", "", "path to the event log (default: storage.log_path, ocpp_sniffer.log)")
	cmd.Flags().String("cp", "", "filter by charge point ID")
	cmd.Flags().String("action", "", "filter by OCPP action (e.g. StatusNotification)")
	cmd.Flags().Bool("only-errors", false, "show only CALLERROR frames and undecodable frames")
	cmd.Flags().Int("connector", 0, "filter by connectorId in the payload")
	cmd.Flags().String("idtag", "", "filter by idTag in the payload")
	cmd.Flags().String("source", "jsonl", "log source: jsonl or sqlite")
	cmd.Flags().Bool("follow", false, "keep reading records as they are appended (jsonl only)")
	cmd.Flags().StringP("output", "o", "text", "output format: text or json")
	cmd.Flags().Bool("no-color", false, "disable colored output")
	cmd.Flags().Int("limit", 0, "stop after this many matches (0 = no limit)")
	return cmd
}

func filterFromFlags(cmd *cobra.Command) query.Filter {
	flags := cmd.Flags()
	var f query.Filter
	f.ChargePointID, _ = flags.GetString("cp")
	f.Action, _ = flags.GetString("action")
	f.OnlyErrors, _ = flags.GetBool("only-errors")
	if flags.Changed("connector") {
		n, _ := flags.GetInt("connector")
		f.ConnectorID = &n
	}
	if tag, _ := flags.GetString("idtag"); tag != "" {
		f.IDTag = &tag
	}
	return f
}

func runQuery(cmd *cobra.Command, _ []string) error {
	cfg := loadConfigOrDefault(cmd)
	logger, err := newLogger(cmd, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	follow, _ := cmd.Flags().GetBool("follow")
	output, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetInt("limit")
	path, _ := cmd.Flags().GetString("log")

	if output != "text" && output != "json" {
		return fmt.Errorf("unknown output format %q", output)
	}
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	ctx := cmd.Context()
	var seq iter.Seq[domain.EventRecord]
	switch source {
	case "jsonl":
		if path == "" {
			path = cfg.Storage.LogPath
		}
		reader := jsonl.Reader{Path: path, Logger: logger}
		if follow {
			seq, err = reader.Follow(ctx)
		} else {
			seq, err = reader.Records(ctx)
		}
		if err != nil {
			return err
		}
	case "sqlite":
		if follow {
			return fmt.Errorf("--follow requires the jsonl source")
		}
		if path == "" {
			path = cfg.Storage.SQLite.Path
		}
		if path == "" {
			return fmt.Errorf("no sqlite database given (use --log or storage.sqlite.path)")
		}
		// sqlite.New would create a missing database.
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("open database %s: %w", path, err)
		}
		store, err := sqlite.New(path)
		if err != nil {
			return err
		}
		defer store.Close()
		if seq, err = store.Records(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	filter := filterFromFlags(cmd)
	out := cmd.OutOrStdout()

	if output == "json" {
		for rec := range query.Limit(query.Query(seq, filter), limit) {
			if err := query.Line(out, rec); err != nil {
				return err
			}
		}
		return nil
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	useColor := !noColor && !color.NoColor && out == os.Stdout
	renderer := query.NewRenderer(out, useColor, filter.OnlyErrors)
	for rec := range query.Limit(query.Query(seq, filter), limit) {
		if err := renderer.Block(rec); err != nil {
			return err
		}
	}
	return nil
}
