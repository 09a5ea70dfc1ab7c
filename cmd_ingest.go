package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"eTEats_web/gateway"
	"eTEats_web/ingest"
	"eTEats_web/logger"
)

// NewIngestCommand runs the same two-path ingestion as the HTTP endpoint on a
// file, or on stdin when the file is "-".
func NewIngestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Create a recipe from an SQL insert statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			var text []byte
			if args[0] == "-" {
				text, err = io.ReadAll(cmd.InOrStdin())
			} else {
				text, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrap(err, "failed to read input")
			}

			gw, err := gateway.Open(cmd.Context(), cfg.Gateway, logger.Component(log, "gateway"))
			if err != nil {
				return errors.Wrap(err, "failed to open gateway")
			}
			defer gw.Close()

			svc := ingest.NewService(gw.Service, cfg.Ingest.RemoteSQL, logger.Component(log, "ingest"))
			res, err := svc.Ingest(cmd.Context(), string(text))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
