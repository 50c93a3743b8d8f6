package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/ledgerwatch/internal/app"
	"github.com/BrandonDHaskell/ledgerwatch/internal/export"
)

var (
	exportWindow time.Duration
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive the hourly health log as JSONL to S3 or a local directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var dest export.Destination
		switch {
		case exportDir != "":
			dest = export.DirDestination{Dir: exportDir}
		case cfg.S3Bucket != "":
			s3, err := export.NewS3Destination(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
			if err != nil {
				return err
			}
			dest = s3
		default:
			return fmt.Errorf("no destination: set s3_bucket or pass --dir")
		}

		backend, err := app.OpenBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		res, err := export.NewExporter(backend.HealthLogs, dest, cfg.S3Prefix).Export(ctx, exportWindow)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d snapshots (%d bytes) to %s\n", res.Snapshots, res.Bytes, res.Key)
		return nil
	},
}

func init() {
	exportCmd.Flags().DurationVar(&exportWindow, "window", 30*24*time.Hour, "how far back to export")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "write to a local directory instead of S3")
}
