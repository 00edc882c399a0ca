// Package cli provides migration CLI commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var migrateSteps int

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateDownCmd.Flags().IntVarP(&migrateSteps, "steps", "n", 1, "number of migrations to roll back")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long: `Manage database schema migrations.

Commands:
  up       Apply pending migrations
  down     Roll back migrations
  status   Show migration status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := database.MigrateUp(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if applied == 0 {
			cmd.Println("No pending migrations")
		} else {
			cmd.Printf("Applied %d migration(s)\n", applied)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Long:  `Roll back the last N migrations (default: 1).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		rolledBack, err := database.MigrateDown(ctx, migrateSteps)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		if rolledBack == 0 {
			cmd.Println("No migrations to roll back")
		} else {
			cmd.Printf("Rolled back %d migration(s)\n", rolledBack)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		statuses, err := database.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return NewFormatter(os.Stdout).Write(statuses)
		}

		return table(os.Stdout, "VERSION\tDESCRIPTION\tAPPLIED", func(w io.Writer) {
			for _, status := range statuses {
				applied := "no"
				if status.Applied {
					applied = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", status.Version, status.Description, applied)
			}
		})
	},
}
