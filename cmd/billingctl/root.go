package main

import (
	"fmt"
	"os"

	"github.com/mcclellann/fredBilling/pkg/config"
	"github.com/mcclellann/fredBilling/pkg/ledger"
	"github.com/mcclellann/fredBilling/pkg/logger"
	"github.com/mcclellann/fredBilling/pkg/store"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "Operator CLI for the installment billing ledger",
	Long: `billingctl works directly on the billing database.

It previews installment schedules, prints the operational report and
runs a reminder pass outside the server's cron schedule. Configuration
is read from the environment or a .env file, as for the API server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			cfg.DBPath = dbPath
		}
		return logger.Setup(cfg.GetLoggerConfig())
	},
}

// openLedger opens the configured database. The caller closes the store.
func openLedger() (*ledger.Ledger, *store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}
	return ledger.NewLedger(s), s, nil
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database file (overrides DB_PATH)")
}
