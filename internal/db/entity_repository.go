// Package db provides SQLite database access for Pulse.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Enntity/pulse/internal/models"
)

// Entity repository errors.
var (
	ErrEntityNotFound = errors.New("entity not found")
)

// EntityRepository handles entity persistence. The scheduler core only reads
// from it; writes exist for the operator CLI standing in for the owning app.
type EntityRepository struct {
	db *DB
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{db: db}
}

const entityColumns = `
	id, name, workspace_url, pulse_enabled,
	wake_interval_minutes, max_chain_depth,
	daily_budget_wakes, daily_budget_tokens,
	active_start, active_end, active_timezone,
	model, created_at, updated_at
`

// Create adds a new entity.
func (r *EntityRepository) Create(ctx context.Context, entity *models.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now

	var start, end, tz *string
	if entity.Pulse.ActiveHours != nil {
		start = nullableString(entity.Pulse.ActiveHours.Start)
		end = nullableString(entity.Pulse.ActiveHours.End)
		tz = nullableString(entity.Pulse.ActiveHours.Timezone)
	}

	enabled := 0
	if entity.Pulse.Enabled {
		enabled = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entities (
			id, name, workspace_url, pulse_enabled,
			wake_interval_minutes, max_chain_depth,
			daily_budget_wakes, daily_budget_tokens,
			active_start, active_end, active_timezone,
			model, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entity.ID,
		entity.Name,
		nullableString(entity.WorkspaceURL),
		enabled,
		entity.Pulse.WakeIntervalMinutes,
		entity.Pulse.MaxChainDepth,
		entity.Pulse.DailyBudgetWakes,
		entity.Pulse.DailyBudgetTokens,
		start,
		end,
		tz,
		nullableString(entity.Pulse.Model),
		entity.CreatedAt.Format(time.RFC3339),
		entity.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	return nil
}

// Get retrieves an entity by ID.
func (r *EntityRepository) Get(ctx context.Context, id string) (*models.Entity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities WHERE id = ?
	`, id)

	return r.scanEntity(row)
}

// List retrieves all entities ordered by name.
func (r *EntityRepository) List(ctx context.Context) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	return r.collectEntities(rows)
}

// ListPulseEnabled retrieves entities with pulse scheduling enabled.
func (r *EntityRepository) ListPulseEnabled(ctx context.Context) ([]*models.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities WHERE pulse_enabled = 1 ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pulse-enabled entities: %w", err)
	}
	defer rows.Close()

	return r.collectEntities(rows)
}

// SetEnabled toggles pulse scheduling for an entity.
func (r *EntityRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE entities SET pulse_enabled = ?, updated_at = ? WHERE id = ?
	`, value, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (r *EntityRepository) collectEntities(rows *sql.Rows) ([]*models.Entity, error) {
	entities := make([]*models.Entity, 0)
	for rows.Next() {
		entity, err := r.scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func (r *EntityRepository) scanEntity(scanner interface{ Scan(...any) error }) (*models.Entity, error) {
	var (
		id           string
		name         string
		workspaceURL sql.NullString
		enabled      int
		interval     int
		maxDepth     int
		budgetWakes  int
		budgetTokens int
		activeStart  sql.NullString
		activeEnd    sql.NullString
		activeTZ     sql.NullString
		model        sql.NullString
		createdAt    string
		updatedAt    string
	)

	if err := scanner.Scan(
		&id,
		&name,
		&workspaceURL,
		&enabled,
		&interval,
		&maxDepth,
		&budgetWakes,
		&budgetTokens,
		&activeStart,
		&activeEnd,
		&activeTZ,
		&model,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	entity := &models.Entity{
		ID:           id,
		Name:         name,
		WorkspaceURL: workspaceURL.String,
		Pulse: models.PulseConfig{
			Enabled:             enabled == 1,
			WakeIntervalMinutes: interval,
			MaxChainDepth:       maxDepth,
			DailyBudgetWakes:    budgetWakes,
			DailyBudgetTokens:   budgetTokens,
			Model:               model.String,
		},
		CreatedAt: parseTime(createdAt),
		UpdatedAt: parseTime(updatedAt),
	}

	if activeStart.Valid || activeEnd.Valid {
		entity.Pulse.ActiveHours = &models.ActiveHours{
			Start:    activeStart.String,
			End:      activeEnd.String,
			Timezone: activeTZ.String,
		}
	}

	return entity, nil
}
