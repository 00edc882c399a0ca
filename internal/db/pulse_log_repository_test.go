package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Enntity/pulse/internal/models"
)

func TestPulseLogRepositoryCreateAndTerminalUpdate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entity := createTestEntity(t, db)
	repo := NewPulseLogRepository(db)
	ctx := context.Background()

	entry := &models.PulseLog{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		WakeType:   models.WakeTypeScheduled,
		ChainDepth: 0,
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if entry.Status != models.PulseStatusInProgress {
		t.Fatalf("expected in_progress default, got %q", entry.Status)
	}

	err := repo.UpdateTerminal(ctx, entry.ID, TerminalUpdate{
		Status:     models.PulseStatusCompleted,
		EndSignal:  models.EndSignalRest,
		Reflection: "caught up on the workspace",
		TokensUsed: 840,
		DurationMs: 1234,
	})
	if err != nil {
		t.Fatalf("UpdateTerminal failed: %v", err)
	}

	stored, err := repo.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Status != models.PulseStatusCompleted || stored.EndSignal != models.EndSignalRest {
		t.Fatalf("unexpected terminal state: %+v", stored)
	}
	if stored.TokensUsed != 840 {
		t.Fatalf("expected 840 tokens, got %d", stored.TokensUsed)
	}
}

func TestPulseLogRepositoryTerminalIsFinal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entity := createTestEntity(t, db)
	repo := NewPulseLogRepository(db)
	ctx := context.Background()

	entry := insertLogAt(t, db, entity.ID, models.PulseStatusInProgress, "", time.Now().UTC())

	if err := repo.UpdateTerminal(ctx, entry.ID, TerminalUpdate{
		Status:     models.PulseStatusSkipped,
		SkipReason: models.SkipReasonBudgetExhausted,
	}); err != nil {
		t.Fatalf("UpdateTerminal failed: %v", err)
	}

	err := repo.UpdateTerminal(ctx, entry.ID, TerminalUpdate{
		Status:    models.PulseStatusFailed,
		EndSignal: models.EndSignalError,
	})
	if !errors.Is(err, ErrLogAlreadyFinal) {
		t.Fatalf("expected ErrLogAlreadyFinal, got %v", err)
	}
}

func TestPulseLogRepositoryFindStuck(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entity := createTestEntity(t, db)
	repo := NewPulseLogRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	older := insertLogAt(t, db, entity.ID, models.PulseStatusInProgress, "old note", now.Add(-40*time.Minute))
	newer := insertLogAt(t, db, entity.ID, models.PulseStatusInProgress, "", now.Add(-20*time.Minute))
	insertLogAt(t, db, entity.ID, models.PulseStatusInProgress, "fresh", now.Add(-1*time.Minute))
	insertLogAt(t, db, entity.ID, models.PulseStatusCompleted, "", now.Add(-30*time.Minute))

	stuck, err := repo.FindStuck(ctx, entity.ID, 15*time.Minute)
	if err != nil {
		t.Fatalf("FindStuck failed: %v", err)
	}
	if len(stuck) != 2 {
		t.Fatalf("expected 2 stuck entries, got %d", len(stuck))
	}
	// Most recent first.
	if stuck[0].ID != newer.ID || stuck[1].ID != older.ID {
		t.Fatalf("unexpected ordering: %s, %s", stuck[0].ID, stuck[1].ID)
	}
}

func TestPulseLogRepositoryFindLastSettled(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entity := createTestEntity(t, db)
	repo := NewPulseLogRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.FindLastSettled(ctx, entity.ID); !errors.Is(err, ErrPulseLogNotFound) {
		t.Fatalf("expected ErrPulseLogNotFound, got %v", err)
	}

	insertLogAt(t, db, entity.ID, models.PulseStatusCompleted, "", now.Add(-2*time.Hour))
	latest := insertLogAt(t, db, entity.ID, models.PulseStatusSkipped, "", now.Add(-1*time.Hour))
	insertLogAt(t, db, entity.ID, models.PulseStatusFailed, "", now.Add(-30*time.Minute))

	settled, err := repo.FindLastSettled(ctx, entity.ID)
	if err != nil {
		t.Fatalf("FindLastSettled failed: %v", err)
	}
	if settled.ID != latest.ID {
		t.Fatalf("expected most recent settled entry, got %s", settled.ID)
	}
}

func TestPulseLogRepositoryListAndAggregate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entity := createTestEntity(t, db)
	repo := NewPulseLogRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		insertLogAt(t, db, entity.ID, models.PulseStatusCompleted, "", now.Add(time.Duration(-i)*time.Hour))
	}
	insertLogAt(t, db, entity.ID, models.PulseStatusFailed, "", now.Add(-4*time.Hour))

	entries, err := repo.List(ctx, ListFilter{EntityID: entity.ID, Status: models.PulseStatusCompleted, Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	aggregates, err := repo.AggregateByEntity(ctx)
	if err != nil {
		t.Fatalf("AggregateByEntity failed: %v", err)
	}
	if len(aggregates) != 1 {
		t.Fatalf("expected 1 aggregate row, got %d", len(aggregates))
	}
	if aggregates[0].Attempts != 4 || aggregates[0].Completed != 3 || aggregates[0].Failed != 1 {
		t.Fatalf("unexpected aggregate: %+v", aggregates[0])
	}
}
