package db

import (
	"context"
	"errors"
	"testing"

	"github.com/Enntity/pulse/internal/models"
)

func TestEntityRepositoryCreateGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entity := &models.Entity{
		Name:         "kestrel",
		WorkspaceURL: "https://app.example.com/w/kestrel",
		Pulse: models.PulseConfig{
			Enabled:             true,
			WakeIntervalMinutes: 30,
			MaxChainDepth:       3,
			DailyBudgetWakes:    48,
			DailyBudgetTokens:   250000,
			ActiveHours: &models.ActiveHours{
				Start:    "09:00",
				End:      "17:00",
				Timezone: "America/New_York",
			},
			Model: "sonnet",
		},
	}
	if err := repo.Create(ctx, entity); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, err := repo.Get(ctx, entity.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Name != "kestrel" || !stored.Pulse.Enabled {
		t.Fatalf("unexpected entity: %+v", stored)
	}
	if stored.Pulse.ActiveHours == nil || stored.Pulse.ActiveHours.Start != "09:00" {
		t.Fatalf("expected active hours to round-trip, got %+v", stored.Pulse.ActiveHours)
	}
	if stored.Pulse.Model != "sonnet" {
		t.Fatalf("expected model override, got %q", stored.Pulse.Model)
	}
}

func TestEntityRepositoryListPulseEnabled(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	enabled := &models.Entity{Name: "a", Pulse: models.PulseConfig{Enabled: true}}
	disabled := &models.Entity{Name: "b", Pulse: models.PulseConfig{Enabled: false}}
	if err := repo.Create(ctx, enabled); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, disabled); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	entities, err := repo.ListPulseEnabled(ctx)
	if err != nil {
		t.Fatalf("ListPulseEnabled failed: %v", err)
	}
	if len(entities) != 1 || entities[0].ID != enabled.ID {
		t.Fatalf("expected only the enabled entity, got %d", len(entities))
	}
}

func TestEntityRepositorySetEnabled(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewEntityRepository(db)
	ctx := context.Background()

	entity := createTestEntity(t, db)
	if err := repo.SetEnabled(ctx, entity.ID, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	stored, err := repo.Get(ctx, entity.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Pulse.Enabled {
		t.Fatalf("expected pulse disabled")
	}

	if err := repo.SetEnabled(ctx, "missing", true); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}
