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

// Wake job repository errors.
var (
	ErrWakeJobNotFound = errors.New("wake job not found")
)

// WakeJobRepository handles the wake job queue. Claiming a due job is a single
// atomic UPDATE; a claimed (running) job is never handed out again, so a worker
// crash mid-job is recovered by the sweeper rather than by redelivery.
type WakeJobRepository struct {
	db *DB
}

// NewWakeJobRepository creates a new WakeJobRepository.
func NewWakeJobRepository(db *DB) *WakeJobRepository {
	return &WakeJobRepository{db: db}
}

const wakeJobColumns = `
	id, entity_id, entity_name, wake_type, chain_depth, task_context,
	run_at, status, error_message, claimed_at, finished_at, created_at
`

// Enqueue adds a job to the queue.
func (r *WakeJobRepository) Enqueue(ctx context.Context, job *models.WakeJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.WakeJobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}

	if err := job.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wake_jobs (
			id, entity_id, entity_name, wake_type, chain_depth, task_context,
			run_at, status, error_message, claimed_at, finished_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.EntityID,
		job.EntityName,
		string(job.WakeType),
		job.ChainDepth,
		nullableString(job.TaskContext),
		job.RunAt.UTC().Format(time.RFC3339),
		string(job.Status),
		nullableString(job.Error),
		stringTimePtr(job.ClaimedAt),
		stringTimePtr(job.FinishedAt),
		job.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert wake job: %w", err)
	}

	return nil
}

// ClaimDue atomically claims up to limit due pending jobs and returns them.
func (r *WakeJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.WakeJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	timestamp := now.UTC().Format(time.RFC3339)

	var jobs []*models.WakeJob
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+wakeJobColumns+` FROM wake_jobs
			WHERE status = ? AND run_at <= ?
			ORDER BY run_at ASC
			LIMIT ?
		`, string(models.WakeJobStatusPending), timestamp, limit)
		if err != nil {
			return fmt.Errorf("failed to query due wake jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, err := r.scanWakeJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		claimedAt := time.Now().UTC()
		for _, job := range jobs {
			result, err := tx.ExecContext(ctx, `
				UPDATE wake_jobs SET status = ?, claimed_at = ?
				WHERE id = ? AND status = ?
			`, string(models.WakeJobStatusRunning), claimedAt.Format(time.RFC3339), job.ID, string(models.WakeJobStatusPending))
			if err != nil {
				return fmt.Errorf("failed to claim wake job: %w", err)
			}
			if affected, _ := result.RowsAffected(); affected == 0 {
				return fmt.Errorf("wake job %s claimed concurrently", job.ID)
			}
			job.Status = models.WakeJobStatusRunning
			job.ClaimedAt = &claimedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// Finish marks a claimed job completed or failed.
func (r *WakeJobRepository) Finish(ctx context.Context, id string, status models.WakeJobStatus, errorMsg string) error {
	if status != models.WakeJobStatusCompleted && status != models.WakeJobStatusFailed {
		return fmt.Errorf("status %q is not a finished status", status)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE wake_jobs SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, string(status), nullableString(errorMsg), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to finish wake job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWakeJobNotFound
	}
	return nil
}

// ClearPending deletes all pending jobs, optionally for one entity.
// Used on startup so stale schedules from a previous process do not fire.
func (r *WakeJobRepository) ClearPending(ctx context.Context, entityID string) (int, error) {
	query := `DELETE FROM wake_jobs WHERE status = ?`
	args := []any{string(models.WakeJobStatusPending)}
	if entityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear pending wake jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// PendingForEntity returns pending jobs for an entity ordered by run time.
func (r *WakeJobRepository) PendingForEntity(ctx context.Context, entityID string) ([]*models.WakeJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+wakeJobColumns+` FROM wake_jobs
		WHERE entity_id = ? AND status = ?
		ORDER BY run_at ASC
	`, entityID, string(models.WakeJobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending wake jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.WakeJob, 0)
	for rows.Next() {
		job, err := r.scanWakeJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *WakeJobRepository) scanWakeJob(scanner interface{ Scan(...any) error }) (*models.WakeJob, error) {
	var (
		id          string
		entityID    string
		entityName  string
		wakeType    string
		chainDepth  int
		taskContext sql.NullString
		runAt       string
		status      string
		errorMsg    sql.NullString
		claimedAt   sql.NullString
		finishedAt  sql.NullString
		createdAt   string
	)

	if err := scanner.Scan(
		&id,
		&entityID,
		&entityName,
		&wakeType,
		&chainDepth,
		&taskContext,
		&runAt,
		&status,
		&errorMsg,
		&claimedAt,
		&finishedAt,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWakeJobNotFound
		}
		return nil, fmt.Errorf("failed to scan wake job: %w", err)
	}

	job := &models.WakeJob{
		ID:          id,
		EntityID:    entityID,
		EntityName:  entityName,
		WakeType:    models.WakeType(wakeType),
		ChainDepth:  chainDepth,
		TaskContext: taskContext.String,
		RunAt:       parseTime(runAt),
		Status:      models.WakeJobStatus(status),
		Error:       errorMsg.String,
		CreatedAt:   parseTime(createdAt),
	}

	if claimedAt.Valid && claimedAt.String != "" {
		t := parseTime(claimedAt.String)
		job.ClaimedAt = &t
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t := parseTime(finishedAt.String)
		job.FinishedAt = &t
	}

	return job, nil
}
