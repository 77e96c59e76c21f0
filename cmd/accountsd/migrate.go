package main

import (
	accounts "github.com/goliatone/go-accounts"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lgr, err := load(cmd)
			if err != nil {
				return err
			}
			logger := lgr.GetLogger("migrate")

			db, err := openDB(cmd.Context(), cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := accounts.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}
