package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blinkportal/backend/internal/db"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create missing tables, columns and indexes for every portal model.
Existing data is never dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %d models\n", len(db.Models()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
