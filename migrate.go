package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(false)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			store, err := storage.NewMySQLStore(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.LogProcess("MIGRATE", "Migration completed successfully")
			return nil
		},
	}
}
