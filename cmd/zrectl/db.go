package main

import (
	"github.com/spf13/cobra"

	rootdb "github.com/opiyodhiambo/zrebot/db"
	"github.com/opiyodhiambo/zrebot/internal/db"
)

// NewDBCommand groups the Postgres schema commands.
func NewDBCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate <up|down|version|force N>",
		Short: "Apply, roll back or inspect schema migrations",
		Example: `  zrectl db migrate up
  zrectl db migrate force 1`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{db.MigrateUp, db.MigrateDown, db.MigrateVersion, db.MigrateForce},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return db.RunMigrate(log, cfg.Postgres, rootdb.MigrationsFS, args[0], args[1:])
		},
	})
	return cmd
}
