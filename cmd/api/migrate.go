package main

import (
	"fmt"

	"eigentask/backend/internal/app"
	"eigentask/backend/internal/config"
	"eigentask/backend/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	var legacyPlanning bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigFile(*configPath)
			if err != nil {
				return err
			}

			pool, err := app.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(pool.DB); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")

			if legacyPlanning {
				moved, err := database.MigrateLegacyPlanning(pool.DB)
				if err != nil {
					return fmt.Errorf("failed to move legacy planning fields: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %d sessions from legacy planning fields\n", moved)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&legacyPlanning, "legacy-planning", false, "Turn task-level planned_start/planned_end into sessions")

	return cmd
}
