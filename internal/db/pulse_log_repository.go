// Package db provides SQLite database access for Pulse.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Enntity/pulse/internal/models"
)

// Pulse log repository errors.
var (
	ErrPulseLogNotFound = errors.New("pulse log not found")
	ErrLogAlreadyFinal  = errors.New("pulse log already in a terminal status")
)

// PulseLogRepository handles wake attempt log persistence.
type PulseLogRepository struct {
	db *DB
}

// NewPulseLogRepository creates a new PulseLogRepository.
func NewPulseLogRepository(db *DB) *PulseLogRepository {
	return &PulseLogRepository{db: db}
}

const pulseLogColumns = `
	id, entity_id, entity_name, wake_type, status, skip_reason,
	chain_depth, end_signal, task_context, reflection,
	tokens_used, tool_calls, error_message, duration_ms,
	created_at, updated_at
`

// Create inserts a new log entry. Missing status defaults to in_progress.
func (r *PulseLogRepository) Create(ctx context.Context, entry *models.PulseLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = models.PulseStatusInProgress
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	if err := entry.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pulse_logs (
			id, entity_id, entity_name, wake_type, status, skip_reason,
			chain_depth, end_signal, task_context, reflection,
			tokens_used, tool_calls, error_message, duration_ms,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.EntityID,
		entry.EntityName,
		string(entry.WakeType),
		string(entry.Status),
		nullableString(string(entry.SkipReason)),
		entry.ChainDepth,
		nullableString(string(entry.EndSignal)),
		nullableString(entry.TaskContext),
		nullableString(entry.Reflection),
		entry.TokensUsed,
		entry.ToolCalls,
		nullableString(entry.Error),
		entry.DurationMs,
		entry.CreatedAt.Format(time.RFC3339),
		entry.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pulse log: %w", err)
	}

	return nil
}

// TerminalUpdate carries the fields set when an attempt reaches a terminal status.
type TerminalUpdate struct {
	Status      models.PulseStatus
	SkipReason  models.SkipReason
	EndSignal   models.EndSignal
	TaskContext string
	Reflection  string
	TokensUsed  int
	ToolCalls   int
	Error       string
	DurationMs  int64
}

// UpdateTerminal transitions an entry to a terminal status. A terminal entry is
// never moved back to a non-terminal status; updating an already-terminal entry
// returns ErrLogAlreadyFinal.
func (r *PulseLogRepository) UpdateTerminal(ctx context.Context, id string, update TerminalUpdate) error {
	if !update.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", update.Status)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE pulse_logs
		SET status = ?, skip_reason = ?, end_signal = ?, task_context = ?,
			reflection = ?, tokens_used = ?, tool_calls = ?, error_message = ?,
			duration_ms = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`,
		string(update.Status),
		nullableString(string(update.SkipReason)),
		nullableString(string(update.EndSignal)),
		nullableString(update.TaskContext),
		nullableString(update.Reflection),
		update.TokensUsed,
		update.ToolCalls,
		nullableString(update.Error),
		update.DurationMs,
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(models.PulseStatusPending),
		string(models.PulseStatusInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to update pulse log: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Either missing or already terminal; distinguish for the caller.
		var status string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM pulse_logs WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPulseLogNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check pulse log status: %w", err)
		}
		return ErrLogAlreadyFinal
	}
	return nil
}

// Get retrieves a log entry by ID.
func (r *PulseLogRepository) Get(ctx context.Context, id string) (*models.PulseLog, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+pulseLogColumns+` FROM pulse_logs WHERE id = ?
	`, id)
	return r.scanPulseLog(row)
}

// FindStuck returns in_progress entries for an entity created before the
// staleness threshold, most recent first.
func (r *PulseLogRepository) FindStuck(ctx context.Context, entityID string, olderThan time.Duration) ([]*models.PulseLog, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pulseLogColumns+` FROM pulse_logs
		WHERE entity_id = ? AND status = ? AND created_at < ?
		ORDER BY created_at DESC
	`, entityID, string(models.PulseStatusInProgress), cutoff.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck pulse logs: %w", err)
	}
	defer rows.Close()

	return r.collectPulseLogs(rows)
}

// FindLastSettled returns the most recent completed or skipped entry for an
// entity, or ErrPulseLogNotFound when the entity has never settled a wake.
func (r *PulseLogRepository) FindLastSettled(ctx context.Context, entityID string) (*models.PulseLog, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+pulseLogColumns+` FROM pulse_logs
		WHERE entity_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC
		LIMIT 1
	`, entityID, string(models.PulseStatusCompleted), string(models.PulseStatusSkipped))
	return r.scanPulseLog(row)
}

// ListFilter narrows List results.
type ListFilter struct {
	EntityID string
	Status   models.PulseStatus
	Limit    int
	Offset   int
}

// List returns log entries matching the filter, most recent first.
func (r *PulseLogRepository) List(ctx context.Context, filter ListFilter) ([]*models.PulseLog, error) {
	query := `SELECT ` + pulseLogColumns + ` FROM pulse_logs WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pulse logs: %w", err)
	}
	defer rows.Close()

	return r.collectPulseLogs(rows)
}

// EntityAggregate is a per-entity rollup of logged wake attempts.
type EntityAggregate struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Attempts   int    `json:"attempts"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	TokensUsed int    `json:"tokens_used"`
}

// AggregateByEntity returns per-entity counts for the admin surface.
func (r *PulseLogRepository) AggregateByEntity(ctx context.Context) ([]EntityAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, entity_name,
			COUNT(*),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END),
			SUM(tokens_used)
		FROM pulse_logs
		GROUP BY entity_id, entity_name
		ORDER BY entity_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pulse logs: %w", err)
	}
	defer rows.Close()

	aggregates := make([]EntityAggregate, 0)
	for rows.Next() {
		var agg EntityAggregate
		if err := rows.Scan(&agg.EntityID, &agg.EntityName, &agg.Attempts, &agg.Completed, &agg.Failed, &agg.Skipped, &agg.TokensUsed); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		aggregates = append(aggregates, agg)
	}

	return aggregates, rows.Err()
}

// Count returns the total number of log entries.
func (r *PulseLogRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pulse_logs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pulse logs: %w", err)
	}
	return count, nil
}

// OldestCreatedAt returns the creation time of the oldest entry, or nil when
// the log is empty.
func (r *PulseLogRepository) OldestCreatedAt(ctx context.Context) (*time.Time, error) {
	var createdAt sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT MIN(created_at) FROM pulse_logs`).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest pulse log: %w", err)
	}
	if !createdAt.Valid || createdAt.String == "" {
		return nil, nil
	}
	t := parseTime(createdAt.String)
	return &t, nil
}

// settledStatuses are the statuses retention is allowed to touch. In-flight
// entries stay until the sweeper settles them.
const settledStatuses = `('completed', 'failed', 'skipped')`

// ListSettledOlderThan returns up to limit settled entries created before the
// cutoff, oldest first.
func (r *PulseLogRepository) ListSettledOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.PulseLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pulseLogColumns+` FROM pulse_logs
		WHERE status IN `+settledStatuses+` AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`, cutoff.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query old pulse logs: %w", err)
	}
	defer rows.Close()

	return r.collectPulseLogs(rows)
}

// ListSettledOldest returns up to limit settled entries, oldest first.
func (r *PulseLogRepository) ListSettledOldest(ctx context.Context, limit int) ([]*models.PulseLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pulseLogColumns+` FROM pulse_logs
		WHERE status IN `+settledStatuses+`
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest pulse logs: %w", err)
	}
	defer rows.Close()

	return r.collectPulseLogs(rows)
}

// DeleteByIDs removes the given entries and reports how many were deleted.
func (r *PulseLogRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM pulse_logs WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pulse logs: %w", err)
	}
	return result.RowsAffected()
}

func (r *PulseLogRepository) collectPulseLogs(rows *sql.Rows) ([]*models.PulseLog, error) {
	entries := make([]*models.PulseLog, 0)
	for rows.Next() {
		entry, err := r.scanPulseLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *PulseLogRepository) scanPulseLog(scanner interface{ Scan(...any) error }) (*models.PulseLog, error) {
	var (
		id          string
		entityID    string
		entityName  string
		wakeType    string
		status      string
		skipReason  sql.NullString
		chainDepth  int
		endSignal   sql.NullString
		taskContext sql.NullString
		reflection  sql.NullString
		tokensUsed  int
		toolCalls   int
		errorMsg    sql.NullString
		durationMs  int64
		createdAt   string
		updatedAt   string
	)

	if err := scanner.Scan(
		&id,
		&entityID,
		&entityName,
		&wakeType,
		&status,
		&skipReason,
		&chainDepth,
		&endSignal,
		&taskContext,
		&reflection,
		&tokensUsed,
		&toolCalls,
		&errorMsg,
		&durationMs,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPulseLogNotFound
		}
		return nil, fmt.Errorf("failed to scan pulse log: %w", err)
	}

	return &models.PulseLog{
		ID:          id,
		EntityID:    entityID,
		EntityName:  entityName,
		WakeType:    models.WakeType(wakeType),
		Status:      models.PulseStatus(status),
		SkipReason:  models.SkipReason(skipReason.String),
		ChainDepth:  chainDepth,
		EndSignal:   models.EndSignal(endSignal.String),
		TaskContext: taskContext.String,
		Reflection:  reflection.String,
		TokensUsed:  tokensUsed,
		ToolCalls:   toolCalls,
		Error:       errorMsg.String,
		DurationMs:  durationMs,
		CreatedAt:   parseTime(createdAt),
		UpdatedAt:   parseTime(updatedAt),
	}, nil
}
