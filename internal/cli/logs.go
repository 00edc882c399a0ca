// Package cli provides wake log inspection commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/models"
)

var (
	logsEntityID string
	logsStatus   string
	logsLimit    int
	logsOffset   int
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsEntitiesCmd)

	logsCmd.Flags().StringVar(&logsEntityID, "entity", "", "filter by entity ID")
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "filter by status (pending, in_progress, completed, failed, skipped)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "maximum entries to show")
	logsCmd.Flags().IntVar(&logsOffset, "offset", 0, "entries to skip (pagination)")
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect wake attempt logs",
	Long: `List wake attempt log entries, most recent first.

Every wake attempt produces exactly one log row: its type, terminal
status, skip reason or end signal, token usage, and carried context.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		if logsStatus != "" {
			switch models.PulseStatus(logsStatus) {
			case models.PulseStatusPending, models.PulseStatusInProgress,
				models.PulseStatusCompleted, models.PulseStatusFailed, models.PulseStatusSkipped:
			default:
				return fmt.Errorf("invalid status %q", logsStatus)
			}
		}

		entries, err := db.NewPulseLogRepository(database).List(ctx, db.ListFilter{
			EntityID: logsEntityID,
			Status:   models.PulseStatus(logsStatus),
			Limit:    logsLimit,
			Offset:   logsOffset,
		})
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return NewFormatter(os.Stdout).Write(entries)
		}

		if len(entries) == 0 {
			cmd.Println("No wake logs found")
			return nil
		}

		return table(os.Stdout, "WHEN\tENTITY\tTYPE\tDEPTH\tSTATUS\tOUTCOME\tTOKENS\tDURATION", func(w io.Writer) {
			for _, entry := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
					entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					entry.EntityName,
					entry.WakeType,
					entry.ChainDepth,
					renderStatus(entry.Status),
					logOutcome(entry),
					entry.TokensUsed,
					(time.Duration(entry.DurationMs) * time.Millisecond).String(),
				)
			}
		})
	},
}

// logOutcome condenses skip reason, end signal and error into one column.
func logOutcome(entry *models.PulseLog) string {
	switch {
	case entry.SkipReason != models.SkipReasonNone:
		return string(entry.SkipReason)
	case entry.Error != "":
		return "error: " + truncateText(entry.Error, 40)
	case entry.EndSignal != models.EndSignalNone:
		return string(entry.EndSignal)
	}
	return "-"
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

var logsEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Per-entity wake attempt rollup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		aggregates, err := db.NewPulseLogRepository(database).AggregateByEntity(ctx)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return NewFormatter(os.Stdout).Write(aggregates)
		}

		if len(aggregates) == 0 {
			cmd.Println("No wake logs found")
			return nil
		}

		return table(os.Stdout, "ENTITY\tATTEMPTS\tCOMPLETED\tFAILED\tSKIPPED\tTOKENS", func(w io.Writer) {
			for _, agg := range aggregates {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
					agg.EntityName, agg.Attempts, agg.Completed, agg.Failed, agg.Skipped, agg.TokensUsed)
			}
		})
	},
}
