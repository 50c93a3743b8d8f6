package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/ledgerwatch/internal/app"
	"github.com/BrandonDHaskell/ledgerwatch/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		backend, err := app.OpenBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		v, err := db.SchemaVersion(ctx, backend.DB, backend.Dialect)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"driver": backend.Dialect, "version": v})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", backend.Dialect, v)
		return nil
	},
}
