// Package cli provides manual wake and compass commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/models"
	"github.com/Enntity/pulse/internal/pulse"
)

var wakeTaskContext string

func init() {
	rootCmd.AddCommand(wakeCmd)
	rootCmd.AddCommand(compassCmd)

	wakeCmd.Flags().StringVar(&wakeTaskContext, "context", "", "task context to carry into the wake")
}

var wakeCmd = &cobra.Command{
	Use:   "wake <entity-id>",
	Short: "Trigger an immediate wake",
	Long: `Enqueue an immediate scheduled wake for an entity.

The running daemon picks the job up on its next tick. The usual guards
still apply; a chain already in flight wins over the triggered wake.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		entity, err := db.NewEntityRepository(database).Get(ctx, args[0])
		if err != nil {
			return err
		}
		if !entity.Pulse.Enabled {
			return fmt.Errorf("entity %s is not pulse enabled", entity.Name)
		}

		if wakeTaskContext != "" {
			store := pulse.NewContextStore(db.NewKVRepository(database))
			if err := store.SaveTaskContext(ctx, entity.ID, wakeTaskContext); err != nil {
				return err
			}
		}

		job := &models.WakeJob{
			EntityID:   entity.ID,
			EntityName: entity.Name,
			WakeType:   models.WakeTypeScheduled,
			RunAt:      time.Now().UTC(),
		}
		if err := db.NewWakeJobRepository(database).Enqueue(ctx, job); err != nil {
			return err
		}

		cmd.Printf("Wake enqueued for %s\n", entity.Name)
		return nil
	},
}

var compassCmd = &cobra.Command{
	Use:   "compass <entity-id> [narrative]",
	Short: "Show or set an entity's compass narrative",
	Long: `Show or set the longer-term narrative summary included in an
entity's wake prompts. Pass a narrative argument to set it; an empty
string clears it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		entity, err := db.NewEntityRepository(database).Get(ctx, args[0])
		if err != nil {
			return err
		}
		store := pulse.NewContextStore(db.NewKVRepository(database))

		if len(args) == 2 {
			if err := store.SetCompass(ctx, entity.ID, args[1]); err != nil {
				return err
			}
			if args[1] == "" {
				cmd.Printf("Compass cleared for %s\n", entity.Name)
			} else {
				cmd.Printf("Compass set for %s\n", entity.Name)
			}
			return nil
		}

		compass, err := store.Compass(ctx, entity.ID)
		if err != nil {
			return err
		}
		if compass == "" {
			cmd.Printf("No compass set for %s\n", entity.Name)
			return nil
		}
		cmd.Println(compass)
		return nil
	},
}
