package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, logger, err := loadConfig()
		if err != nil {
			return err
		}
		// Opening the store applies pending migrations.
		st, err := sqlite.New(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
