package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/wordfill-backend/internal/challenge"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the challenge tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for migrate")
		}
		db, err := challenge.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := challenge.Migrate(db); err != nil {
			return err
		}
		log.Info("migration complete")
		return nil
	},
}
