package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/ledgerwatch/internal/app"
	"github.com/BrandonDHaskell/ledgerwatch/internal/config"
)

var (
	cfgPath    string
	jsonOutput bool

	cfg    config.Config
	logger *slog.Logger
)

func defaultConfigPath() string {
	return os.Getenv("LEDGERWATCH_CONFIG")
}

var rootCmd = &cobra.Command{
	Use:           "ledgerwatch <command>",
	Short:         "RFID timekeeping ledger health monitor",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
		logger = app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd, migrateCmd, verifyCmd, snapshotCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
