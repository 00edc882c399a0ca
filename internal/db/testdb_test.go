package db

import (
	"context"
	"testing"
	"time"

	"github.com/Enntity/pulse/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func createTestEntity(t *testing.T, db *DB) *models.Entity {
	t.Helper()

	repo := NewEntityRepository(db)
	entity := &models.Entity{
		Name: "aria",
		Pulse: models.PulseConfig{
			Enabled:             true,
			WakeIntervalMinutes: 15,
			MaxChainDepth:       5,
		},
	}
	if err := repo.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create entity failed: %v", err)
	}
	return entity
}

func insertLogAt(t *testing.T, db *DB, entityID string, status models.PulseStatus, taskContext string, createdAt time.Time) *models.PulseLog {
	t.Helper()

	repo := NewPulseLogRepository(db)
	entry := &models.PulseLog{
		EntityID:    entityID,
		EntityName:  "aria",
		WakeType:    models.WakeTypeScheduled,
		Status:      status,
		TaskContext: taskContext,
		CreatedAt:   createdAt,
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create pulse log failed: %v", err)
	}
	return entry
}
