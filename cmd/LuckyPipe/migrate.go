package main

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Create or update the ledger schema to the latest version.

The server applies migrations on startup too; this command lets you do it
ahead of a deployment.`,
		Args: cobra.NoArgs,
		RunE: a.runMigrate,
	}
}

func (a *app) runMigrate(cmd *cobra.Command, _ []string) error {
	dsn := a.cfg.DSN()
	slog.Info("Starting database migration", "dsn_type", store.DetectDSNType(dsn))

	st, err := store.Open(cmd.Context(), dsn)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer st.Close()

	version := int64(0)
	if v, ok := st.(interface{ SchemaVersion() int64 }); ok {
		version = v.SchemaVersion()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database is at schema version %d\n", version)
	return nil
}
