package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chesapeake-backend/internal/config"
	"chesapeake-backend/internal/logging"
)

func backfillCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill-display-ids",
		Short: "Assign YY-NNN display ids to orders that have none",
		Long: `Numbers every order without a display id, oldest first, continuing each
year's counter. All assignments commit together or not at all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for backfill")
			}
			log, err := logging.New(*cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := startupContext()
			defer cancel()
			a, err := buildApp(ctx, *cfg, log)
			if err != nil {
				return err
			}
			defer a.Close(log)

			n, err := a.backfill.BackfillDisplayIDs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned %d display ids\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres DSN")
	return cmd
}
