package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/ocpp-sniffer/internal/codec/ocpp"
	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [frame]",
		Short: "Decode a single OCPP frame",
		Long:  "Decodes one frame from the argument or stdin and prints it in the log's decoded format.",
		Example: `  ocpp-sniffer decode '[2,"19223201","BootNotification",{"chargePointVendor":"ACME"}]'
  echo '[3,"19223201",{"status":"Accepted"}]' | ocpp-sniffer decode`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				raw = strings.TrimRight(string(data), "\r\n")
			}

			out, err := domain.MarshalDecoded(ocpp.Decode(raw))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
