// Command plan-engine serves the weekly plan engine and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "plan-engine",
		Short:         "Personalized weekly plan engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file to load before reading configuration")

	cmd.AddCommand(
		serveCmd(&envFile),
		migrateCmd(&envFile),
		usageCmd(&envFile),
		usageCleanupCmd(&envFile),
		historyCmd(&envFile),
	)
	return cmd
}
