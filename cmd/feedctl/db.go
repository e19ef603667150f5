package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"feedwire/internal/infra/db"
	"feedwire/internal/infra/worker"
)

func dbCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database schema of the sqlite and postgres backends",
	}
	cmd.AddCommand(dbMigrateCmd(g))
	return cmd
}

func dbMigrateCmd(g *globalFlags) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create (or with --down, drop) the cache and feedback tables",
		Long: `Applies the schema for the configured cache backend. Migrations are
idempotent. --down drops every table and with it the dedup history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := g.loadConfig(g.logger())
			if err != nil {
				return err
			}

			var (
				database *sql.DB
				dialect  db.Dialect
			)
			switch cfg.CacheBackend {
			case worker.BackendSQLite:
				database, err = db.OpenSQLite(cfg.CachePath)
				dialect = db.SQLite
			case worker.BackendPostgres:
				database, err = db.OpenPostgres(cmd.Context(), cfg.DatabaseURL)
				dialect = db.Postgres
			default:
				return fmt.Errorf("backend %q has no database schema", cfg.CacheBackend)
			}
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, database.Close()) }()

			if down {
				if err := db.MigrateDown(database); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dropped %s schema\n", dialect)
				return nil
			}
			if err := db.MigrateUp(database, dialect); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", dialect)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "drop the tables instead")
	return cmd
}
