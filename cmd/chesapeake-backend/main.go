package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chesapeake-backend/internal/config"
	"chesapeake-backend/internal/env"
)

var Version = "dev"

func main() {
	env.Load(".env", ".env.local")
	cfg := config.EnvDefaults()

	rootCmd := &cobra.Command{
		Use:           "chesapeake-backend",
		Short:         "Stripe webhook order reconciliation for The Chesapeake Shell",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := serveCmd(&cfg)
	rootCmd.RunE = serve.RunE
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(backfillCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
