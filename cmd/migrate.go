package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/sla-engine/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		pg, err := connectPostgres(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		return persistence.RunMigrations(ctx, pg.Pool, logger)
	},
}
