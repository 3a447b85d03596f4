package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create or update the database schema, including the unique indexes that
keep document numbers from ever being issued twice.

Examples:
  fiscal-manager migrate
  fiscal-manager migrate --db-driver postgres --db-url postgres://fiscal@localhost/fiscal`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.DatabaseDriver)
	return nil
}
