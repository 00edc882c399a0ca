package pulse

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/logging"
)

// DefaultLockTTL bounds how long a dead worker can block an entity's chain.
// The lock spans an entire chain, not a single attempt, so the TTL must
// comfortably exceed one agent invocation; continuations refresh it.
const DefaultLockTTL = 900 * time.Second

// LockManager provides the per-entity mutual exclusion that serializes wake
// chains. At most one holder per entity; acquisition is atomic
// create-if-absent with a TTL so a crashed holder expires rather than
// blocking the entity forever.
type LockManager struct {
	kv     *db.KVRepository
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLockManager creates a lock manager with the default TTL.
func NewLockManager(kv *db.KVRepository) *LockManager {
	return &LockManager{
		kv:     kv,
		ttl:    DefaultLockTTL,
		logger: logging.Component("lock"),
	}
}

// Acquire attempts to take the entity's chain lock. Returns whether
// acquisition succeeded; false means a chain is already running.
func (m *LockManager) Acquire(ctx context.Context, entityID string) (bool, error) {
	holder := time.Now().UTC().Format(time.RFC3339Nano)
	acquired, err := m.kv.SetNX(ctx, lockKey(entityID), holder, m.ttl)
	if err != nil {
		return false, err
	}
	if acquired {
		m.logger.Debug().Str("entity_id", entityID).Msg("lock acquired")
	}
	return acquired, nil
}

// Refresh unconditionally resets the lock's TTL. Called at the start of every
// continuation to prove the chain is still alive.
func (m *LockManager) Refresh(ctx context.Context, entityID string) error {
	return m.kv.Expire(ctx, lockKey(entityID), m.ttl)
}

// Release deletes the lock. Idempotent: releasing an absent lock is fine.
// Must be reached exactly once per chain's terminal outcome.
func (m *LockManager) Release(ctx context.Context, entityID string) error {
	if err := m.kv.Delete(ctx, lockKey(entityID)); err != nil {
		return err
	}
	m.logger.Debug().Str("entity_id", entityID).Msg("lock released")
	return nil
}

// Held reports whether the entity's lock currently exists. Diagnostic only;
// never use this to gate acquisition.
func (m *LockManager) Held(ctx context.Context, entityID string) (bool, error) {
	_, ok, err := m.kv.Get(ctx, lockKey(entityID))
	return ok, err
}
