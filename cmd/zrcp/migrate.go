package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/config"
	repopg "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/postgres"
	reposqlite "github.com/MohamadKamardin1/zrcp-backend/pkg/cms/repo/sqlite"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbType, err := c.cfg.DatabaseType()
			if err != nil {
				return err
			}

			var applied []int
			switch dbType {
			case config.DatabasePostgres:
				pool, err := repopg.NewPool(ctx, c.cfg.DatabaseURL, c.cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("failed to connect to postgres: %w", err)
				}
				defer pool.Close()
				if applied, err = repopg.Migrate(ctx, pool); err != nil {
					return err
				}
			case config.DatabaseSQLite:
				// Open applies pending migrations itself.
				repo, _, err := c.cfg.BuildRepository(ctx)
				if err != nil {
					return err
				}
				sqliteRepo := repo.(*reposqlite.Repository)
				defer sqliteRepo.Close()
				if applied, err = reposqlite.Migrate(sqliteRepo.DB()); err != nil {
					return err
				}
			default:
				return errors.New("the memory database has no schema to migrate")
			}

			if len(applied) == 0 {
				c.logger.Info("Schema is up to date", "database", dbType)
				return nil
			}
			c.logger.Info("Applied migrations", "database", dbType, "versions", applied)
			return nil
		},
	}
}
