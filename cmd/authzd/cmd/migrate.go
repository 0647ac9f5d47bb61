package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"github.com/bl-hori/auth-platform-sub003/internal/config"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the db migration",
	Long:  `Apply pending schema migrations to the configured database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doMigration(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func doMigration(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	session, err := db.NewSession(cfg.Database.DSN, 1)
	if err != nil {
		return err
	}
	defer session.Close()

	migrator := migrate.NewMigrator(session.DB, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	_, err = migrator.Migrate(ctx)
	return err
}
