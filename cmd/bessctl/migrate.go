package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/bess-advisor/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply the embedded schema migrations to the configured SQLite or Postgres
database. Use --status to list applied and pending migrations without
changing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN(), storage.PoolConfig{})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			migrator := storage.NewMigrator(db, cfg.Database.Driver)

			if statusOnly {
				status, err := migrator.Status(ctx)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(status)
				}
				ui.Info("%d of %d migrations applied on %s", len(status.Applied), status.Total, cfg.Database.Driver)
				for _, p := range status.Pending {
					ui.Step("pending: %s", p)
				}
				if status.UpToDate {
					ui.Success("Schema is up to date")
				}
				return nil
			}

			logger.Info().Str("driver", cfg.Database.Driver).Msg("Running migrations")
			applied, err := migrator.Run(ctx)
			if err != nil {
				return err
			}

			if outputJSON {
				if applied == nil {
					applied = []string{}
				}
				return ui.JSON(map[string]interface{}{"applied": applied})
			}
			if len(applied) == 0 {
				ui.Success("Schema is up to date")
				return nil
			}
			for _, v := range applied {
				ui.Success("Applied %s", v)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "show migration status only")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				return ui.JSON(map[string]string{
					"version": version,
					"go":      runtime.Version(),
				})
			}
			fmt.Fprintf(ui.out, "bessctl %s (%s)\n", version, runtime.Version())
			return nil
		},
	}
}
