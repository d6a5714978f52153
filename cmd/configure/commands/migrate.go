package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  "Create or update the users, meals, foods, tags and tag statistics tables. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, closeDB, err := connect()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
			return nil
		},
	}
}
