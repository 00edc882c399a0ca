package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/models"
)

func insertLogAt(t *testing.T, logs *db.PulseLogRepository, entityID string, status models.PulseStatus, taskContext string, createdAt time.Time) *models.PulseLog {
	t.Helper()
	entry := &models.PulseLog{
		EntityID:    entityID,
		EntityName:  "aria",
		WakeType:    models.WakeTypeScheduled,
		Status:      status,
		TaskContext: taskContext,
		CreatedAt:   createdAt,
	}
	require.NoError(t, logs.Create(context.Background(), entry))
	return entry
}

func TestSweeperReclassifiesStuckLogs(t *testing.T) {
	database := setupTestDB(t)
	logs := db.NewPulseLogRepository(database)
	sweeper := NewSweeper(logs)
	ctx := context.Background()

	old := time.Now().UTC().Add(-30 * time.Minute)
	withContext := insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "resume the essay", old)
	withoutContext := insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "", old.Add(time.Minute))
	fresh := insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "too new", time.Now().UTC())

	recovered, err := sweeper.CleanupStuck(ctx, "ent-1")
	require.NoError(t, err)
	require.Equal(t, "resume the essay", recovered)

	for _, id := range []string{withContext.ID, withoutContext.ID} {
		entry, err := logs.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, models.PulseStatusFailed, entry.Status)
		require.Equal(t, models.EndSignalCrashRecovery, entry.EndSignal)
		require.NotEmpty(t, entry.Error)
		require.Positive(t, entry.DurationMs)
	}

	entry, err := logs.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.PulseStatusInProgress, entry.Status, "a recent in_progress entry is left alone")
}

func TestSweeperPrefersFreshestContext(t *testing.T) {
	database := setupTestDB(t)
	logs := db.NewPulseLogRepository(database)
	sweeper := NewSweeper(logs)

	base := time.Now().UTC().Add(-2 * time.Hour)
	insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "older note", base)
	insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "newer note", base.Add(10*time.Minute))

	recovered, err := sweeper.CleanupStuck(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Equal(t, "newer note", recovered)
}

func TestSweeperSkipsEmptyContexts(t *testing.T) {
	database := setupTestDB(t)
	logs := db.NewPulseLogRepository(database)
	sweeper := NewSweeper(logs)

	base := time.Now().UTC().Add(-time.Hour)
	insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "the only note", base)
	insertLogAt(t, logs, "ent-1", models.PulseStatusInProgress, "", base.Add(5*time.Minute))

	recovered, err := sweeper.CleanupStuck(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Equal(t, "the only note", recovered, "an empty context never shadows a real one")
}

func TestSweeperNothingStuck(t *testing.T) {
	database := setupTestDB(t)
	sweeper := NewSweeper(db.NewPulseLogRepository(database))

	recovered, err := sweeper.CleanupStuck(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Empty(t, recovered)
}
