// Package db provides SQLite database access for Pulse.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KVRepository is a TTL key-value store backing the pulse lock, budget
// counters, durable task context, the end-signal mailbox, and liveness
// markers. Expiry is enforced on read; an expired row counts as absent for
// SetNX so a dead holder never blocks a key forever.
type KVRepository struct {
	db *DB
}

// NewKVRepository creates a new KVRepository.
func NewKVRepository(db *DB) *KVRepository {
	return &KVRepository{db: db}
}

func ttlExpiry(now time.Time, ttl time.Duration) *string {
	if ttl <= 0 {
		return nil
	}
	value := now.Add(ttl).UTC().Format(time.RFC3339)
	return &value
}

// Set stores a value, replacing any existing one. A ttl of zero means no expiry.
func (r *KVRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, ttlExpiry(now, ttl))
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// SetNX stores a value only if the key is absent (or expired). Returns whether
// the write happened. This is the atomic create-if-absent the lock relies on.
func (r *KVRepository) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= ?
	`, key, value, ttlExpiry(now, ttl), timestamp)
	if err != nil {
		return false, fmt.Errorf("failed to setnx key %q: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Get returns the value for a key. A missing or expired key returns ok=false.
func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM kv_entries WHERE key = ?
	`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %q: %w", key, err)
	}

	if expired(expiresAt) {
		return "", false, nil
	}
	return value, true, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// TakeValue reads and deletes a key in one transaction: at-most-once consumption.
func (r *KVRepository) TakeValue(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt sql.NullString
		found     bool
	)
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT value, expires_at FROM kv_entries WHERE key = ?
		`, key).Scan(&value, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read key %q: %w", key, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to consume key %q: %w", key, err)
		}
		found = !expired(expiresAt)
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	return value, true, nil
}

// Expire resets a key's TTL. A missing key is left absent.
func (r *KVRepository) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
		UPDATE kv_entries SET expires_at = ? WHERE key = ?
	`, ttlExpiry(now, ttl), key); err != nil {
		return fmt.Errorf("failed to refresh ttl for key %q: %w", key, err)
	}
	return nil
}

// IncrField atomically increments a counter field under a key and refreshes the
// key's expiry. Returns the new field value.
func (r *KVRepository) IncrField(ctx context.Context, key, field string, delta int64, ttl time.Duration) (int64, error) {
	now := time.Now().UTC()
	expiresAt := ttlExpiry(now, ttl)

	var value int64
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv_counters (key, field, value, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key, field) DO UPDATE SET
				value = kv_counters.value + excluded.value,
				expires_at = excluded.expires_at
		`, key, field, delta, expiresAt); err != nil {
			return fmt.Errorf("failed to increment %q.%q: %w", key, field, err)
		}

		return tx.QueryRowContext(ctx, `
			SELECT value FROM kv_counters WHERE key = ? AND field = ?
		`, key, field).Scan(&value)
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// GetFields returns all unexpired counter fields under a key.
// Missing fields are simply absent from the map.
func (r *KVRepository) GetFields(ctx context.Context, key string) (map[string]int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	rows, err := r.db.QueryContext(ctx, `
		SELECT field, value FROM kv_counters
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to read counters for key %q: %w", key, err)
	}
	defer rows.Close()

	fields := make(map[string]int64)
	for rows.Next() {
		var (
			field string
			value int64
		)
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("failed to scan counter row: %w", err)
		}
		fields[field] = value
	}
	return fields, rows.Err()
}

// PurgeExpired deletes expired entries and counters.
// Returns the number of rows removed.
func (r *KVRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	timestamp := now.UTC().Format(time.RFC3339)

	total := 0
	for _, query := range []string{
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		`DELETE FROM kv_counters WHERE expires_at IS NOT NULL AND expires_at <= ?`,
	} {
		result, err := r.db.ExecContext(ctx, query, timestamp)
		if err != nil {
			return total, fmt.Errorf("failed to purge expired keys: %w", err)
		}
		rows, _ := result.RowsAffected()
		total += int(rows)
	}
	return total, nil
}

func expired(expiresAt sql.NullString) bool {
	if !expiresAt.Valid || expiresAt.String == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, expiresAt.String)
	if err != nil {
		return false
	}
	return !t.After(time.Now().UTC())
}
