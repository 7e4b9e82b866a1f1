package main

import (
	"github.com/spf13/cobra"
	"github.com/terminal-bench/comptroller/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)

		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.New(db).Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.DatabaseDriver)
		return nil
	},
}
