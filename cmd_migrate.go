package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"eTEats_web/gateway"
	"eTEats_web/logger"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the recipe tables, optionally with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			gw, err := gateway.Open(cmd.Context(), cfg.Gateway, logger.Component(log, "gateway"))
			if err != nil {
				return errors.Wrap(err, "failed to open gateway")
			}
			defer gw.Close()

			// schema changes need the privileged store
			store, ok := gw.Service.(*gateway.SQLStore)
			if !ok {
				return errors.Errorf("migrate needs an SQL backend with a service DSN, got %q", cfg.Gateway.Backend)
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")

			if !seed {
				return nil
			}
			added, err := store.Seed(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to seed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d recipes\n", added)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert demo recipes")

	return cmd
}
