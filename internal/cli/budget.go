// Package cli provides budget inspection commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/pulse"
)

func init() {
	rootCmd.AddCommand(budgetCmd)
}

var budgetCmd = &cobra.Command{
	Use:   "budget [entity-id]",
	Short: "Show today's wake and token budgets",
	Long: `Show today's (UTC) wake and token counters against each entity's
configured daily maxima. An exhausted budget skips wakes until the
next UTC day.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewEntityRepository(database)
		ledger := pulse.NewLedger(db.NewKVRepository(database))

		entities, err := repo.List(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			entity, err := repo.Get(ctx, args[0])
			if err != nil {
				return err
			}
			entities = entities[:0]
			entities = append(entities, entity)
		}

		type budgetRow struct {
			EntityID   string `json:"entity_id"`
			EntityName string `json:"entity_name"`
			Wakes      int    `json:"wakes"`
			MaxWakes   int    `json:"max_wakes"`
			Tokens     int    `json:"tokens"`
			MaxTokens  int    `json:"max_tokens"`
			Exhausted  bool   `json:"exhausted"`
		}

		rows := make([]budgetRow, 0, len(entities))
		for _, entity := range entities {
			status, err := ledger.Check(ctx, entity.ID, entity.Pulse)
			if err != nil {
				return err
			}
			rows = append(rows, budgetRow{
				EntityID:   entity.ID,
				EntityName: entity.Name,
				Wakes:      status.Wakes,
				MaxWakes:   entity.Pulse.WakeBudget(),
				Tokens:     status.Tokens,
				MaxTokens:  entity.Pulse.TokenBudget(),
				Exhausted:  status.Exhausted,
			})
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return NewFormatter(os.Stdout).Write(rows)
		}

		if len(rows) == 0 {
			cmd.Println("No entities configured")
			return nil
		}

		return table(os.Stdout, "ENTITY\tWAKES\tTOKENS\tSTATE", func(w io.Writer) {
			for _, row := range rows {
				state := render(styleCompleted, "ok")
				if row.Exhausted {
					state = render(styleFailed, "exhausted")
				}
				fmt.Fprintf(w, "%s\t%d/%d\t%d/%d\t%s\n",
					row.EntityName, row.Wakes, row.MaxWakes, row.Tokens, row.MaxTokens, state)
			}
		})
	},
}
