package pulse

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/logging"
	"github.com/Enntity/pulse/internal/models"
)

// DefaultStuckThreshold is how old an in_progress log entry must be before
// the sweeper presumes its worker crashed. Comfortably longer than a normal
// invocation, comfortably shorter than the wake interval.
const DefaultStuckThreshold = 15 * time.Minute

// Sweeper reclassifies log entries abandoned by crashed workers and salvages
// the task context they were carrying. It runs lazily, at the start of the
// entity's next attempt; there is no background scan.
type Sweeper struct {
	logs      *db.PulseLogRepository
	threshold time.Duration
	logger    zerolog.Logger
}

// NewSweeper creates a sweeper with the default staleness threshold.
func NewSweeper(logs *db.PulseLogRepository) *Sweeper {
	return &Sweeper{
		logs:      logs,
		threshold: DefaultStuckThreshold,
		logger:    logging.Component("sweeper"),
	}
}

// CleanupStuck transitions every stale in_progress entry for the entity to
// failed with end signal crash_recovery, and returns the salvaged task
// context. Entries come back most recent first; the first non-empty context
// wins, so the freshest note survives when several attempts crashed.
func (s *Sweeper) CleanupStuck(ctx context.Context, entityID string) (string, error) {
	stuck, err := s.logs.FindStuck(ctx, entityID, s.threshold)
	if err != nil {
		return "", err
	}
	if len(stuck) == 0 {
		return "", nil
	}

	recovered := ""
	now := time.Now().UTC()
	for _, entry := range stuck {
		if recovered == "" && entry.TaskContext != "" {
			recovered = entry.TaskContext
		}

		update := db.TerminalUpdate{
			Status:      models.PulseStatusFailed,
			EndSignal:   models.EndSignalCrashRecovery,
			TaskContext: entry.TaskContext,
			Error:       "wake attempt abandoned, presumed worker crash",
			TokensUsed:  entry.TokensUsed,
			ToolCalls:   entry.ToolCalls,
			DurationMs:  now.Sub(entry.CreatedAt).Milliseconds(),
		}
		if err := s.logs.UpdateTerminal(ctx, entry.ID, update); err != nil {
			// Another worker's sweeper may have raced us to this entry.
			s.logger.Warn().
				Str("entity_id", entityID).
				Str("log_id", entry.ID).
				Err(err).
				Msg("failed to reclassify stuck pulse log")
			continue
		}

		s.logger.Info().
			Str("entity_id", entityID).
			Str("log_id", entry.ID).
			Time("stuck_since", entry.CreatedAt).
			Msg("reclassified stuck pulse log as crash recovery")
	}

	return recovered, nil
}
