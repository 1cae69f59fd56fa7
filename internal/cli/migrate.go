package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"chat-quiz-service/internal/config"
	pgmigrations "chat-quiz-service/internal/infra/postgres/migrations"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

// NewMigrateCmd manages the quiz_results schema.
func NewMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending quiz result migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator) error {
				group, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if group.IsZero() {
					log.Printf("nothing to roll back")
					return nil
				}
				log.Printf("rolled back %s", group)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), *configPath, func(ctx context.Context, m *migrate.Migrator) error {
				ms, err := m.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}
				for _, mig := range ms {
					state := "pending"
					if mig.IsApplied() {
						state = fmt.Sprintf("applied (group %d)", mig.GroupID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", mig.Name, state)
				}
				return nil
			})
		},
	})
	return cmd
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return runMigrationsWithConfig(ctx, cfg)
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	return migrateWith(ctx, cfg, func(ctx context.Context, m *migrate.Migrator) error {
		group, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		if group.IsZero() {
			log.Printf("quiz_results schema up to date")
			return nil
		}
		log.Printf("migrated to %s", group)
		return nil
	})
}

func withMigrator(ctx context.Context, configPath string, fn func(context.Context, *migrate.Migrator) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return migrateWith(ctx, cfg, fn)
}

func migrateWith(ctx context.Context, cfg config.Config, fn func(context.Context, *migrate.Migrator) error) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, migrator)
}
