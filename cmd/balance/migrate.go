package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
	"github.com/Veraticus/the-spice-must-balance/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has the session, ledger, rule and
match tables the reconciliation commands rely on.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetBool("status")
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := storage.NewSQLiteStorage(a.cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			current, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			if status {
				return printf(out, "%s Database %s\n  Current version: %d\n  Latest version:  %d\n",
					cli.FolderIcon, a.cfg.Database.Path, current, storage.ExpectedSchemaVersion)
			}

			slog.Info("Running database migrations", "database", a.cfg.Database.Path, "from_version", current)
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			return writeLine(out, cli.FormatSuccess(fmt.Sprintf("Database at schema version %d", storage.ExpectedSchemaVersion)))
		},
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}
