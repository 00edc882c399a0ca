// Package scheduler drives the wake pipeline: it schedules one repeating wake
// job per pulse-enabled entity, claims due jobs on a tick loop, runs the
// orchestrator inside a bounded worker pool, and carries the per-entity chain
// lock across continuation jobs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/events"
	"github.com/Enntity/pulse/internal/logging"
	"github.com/Enntity/pulse/internal/models"
	"github.com/Enntity/pulse/internal/pulse"
)

// Scheduler errors.
var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Config contains scheduler configuration.
type Config struct {
	// TickInterval is how often the queue is polled for due jobs.
	TickInterval time.Duration

	// StartupDelay postpones the first scheduled wake after boot so a
	// restart does not wake every entity at once.
	StartupDelay time.Duration

	// ContinueDelay is the gap before a chain continuation fires.
	ContinueDelay time.Duration

	// MaxConcurrentWakes bounds how many entities' jobs run at once. A
	// single entity's chain is serialized by its lock, not by this pool.
	MaxConcurrentWakes int

	// ClaimBatch is the maximum number of due jobs claimed per tick.
	ClaimBatch int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:       5 * time.Second,
		StartupDelay:       30 * time.Second,
		ContinueDelay:      2 * time.Second,
		MaxConcurrentWakes: 5,
		ClaimBatch:         10,
	}
}

// DispatchEvent describes one handled wake job, for observers.
type DispatchEvent struct {
	JobID      string
	EntityID   string
	EntityName string
	WakeType   models.WakeType
	Signal     models.WakeSignal
	Error      string
	Timestamp  time.Time
	Duration   time.Duration
}

// Stats contains scheduler statistics.
type Stats struct {
	Running         bool
	StartedAt       *time.Time
	JobsHandled     int64
	WakesCompleted  int64
	WakesSkipped    int64
	WakesFailed     int64
	ChainsContinued int64
	LockContention  int64
	LastWakeAt      *time.Time
}

// Scheduler owns the wake queue's tick loop and worker pool.
type Scheduler struct {
	config       Config
	entities     *db.EntityRepository
	jobs         *db.WakeJobRepository
	locks        *pulse.LockManager
	orchestrator *pulse.Orchestrator
	publisher    events.Publisher
	logger       zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	wakeSem chan struct{}

	stats      Stats
	statsMu    sync.RWMutex
	dispatchCh chan DispatchEvent
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPublisher sets the event publisher for the scheduler.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Scheduler) {
		s.publisher = publisher
	}
}

// New creates a new Scheduler.
func New(config Config, entities *db.EntityRepository, jobs *db.WakeJobRepository, locks *pulse.LockManager, orchestrator *pulse.Orchestrator, opts ...Option) *Scheduler {
	defaults := DefaultConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.StartupDelay < 0 {
		config.StartupDelay = defaults.StartupDelay
	}
	if config.ContinueDelay <= 0 {
		config.ContinueDelay = defaults.ContinueDelay
	}
	if config.MaxConcurrentWakes <= 0 {
		config.MaxConcurrentWakes = defaults.MaxConcurrentWakes
	}
	if config.ClaimBatch <= 0 {
		config.ClaimBatch = defaults.ClaimBatch
	}

	s := &Scheduler{
		config:       config,
		entities:     entities,
		jobs:         jobs,
		locks:        locks,
		orchestrator: orchestrator,
		logger:       logging.Component("scheduler"),
		wakeSem:      make(chan struct{}, config.MaxConcurrentWakes),
		dispatchCh:   make(chan DispatchEvent, 100),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start clears stale schedules, seeds one wake job per enabled entity, and
// begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	now := time.Now().UTC()
	s.statsMu.Lock()
	s.stats.Running = true
	s.stats.StartedAt = &now
	s.statsMu.Unlock()

	if err := s.seedSchedules(s.ctx); err != nil {
		s.running = false
		s.cancel()
		return err
	}

	s.logger.Info().
		Dur("tick_interval", s.config.TickInterval).
		Int("max_concurrent", s.config.MaxConcurrentWakes).
		Msg("scheduler starting")

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop halts the tick loop and waits for in-flight wakes to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.statsMu.Lock()
	s.stats.Running = false
	s.statsMu.Unlock()

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// seedSchedules clears pending jobs left over from a previous process and
// enqueues a fresh scheduled wake per enabled entity past the startup delay.
func (s *Scheduler) seedSchedules(ctx context.Context) error {
	cleared, err := s.jobs.ClearPending(ctx, "")
	if err != nil {
		return err
	}
	if cleared > 0 {
		s.logger.Info().Int("cleared", cleared).Msg("cleared stale pending wake jobs")
	}

	entities, err := s.entities.ListPulseEnabled(ctx)
	if err != nil {
		return err
	}

	for _, entity := range entities {
		job := &models.WakeJob{
			EntityID:   entity.ID,
			EntityName: entity.Name,
			WakeType:   models.WakeTypeScheduled,
			RunAt:      time.Now().UTC().Add(s.config.StartupDelay),
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			return err
		}
	}

	s.logger.Info().Int("entities", len(entities)).Msg("seeded wake schedules")
	return nil
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick claims due jobs and hands each to a pooled worker.
func (s *Scheduler) tick() {
	jobs, err := s.jobs.ClaimDue(s.ctx, time.Now().UTC(), s.config.ClaimBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to claim due wake jobs")
		return
	}

	for _, job := range jobs {
		select {
		case s.wakeSem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		s.wg.Add(1)
		go func(job *models.WakeJob) {
			defer s.wg.Done()
			defer func() { <-s.wakeSem }()
			s.handleJob(s.ctx, job)
		}(job)
	}
}

// handleJob runs one claimed wake job end to end. The lock hand-off contract:
// a scheduled job acquires the chain lock; a continuation inherits it and
// refreshes its TTL. The lock is released on every terminal signal and on
// continuation-enqueue failure; the only path that keeps it is a successfully
// enqueued continuation, whose job becomes the new owner.
func (s *Scheduler) handleJob(ctx context.Context, job *models.WakeJob) {
	start := time.Now()
	logger := s.logger.With().
		Str("job_id", job.ID).
		Str("entity_id", job.EntityID).
		Str("wake_type", string(job.WakeType)).
		Int("chain_depth", job.ChainDepth).
		Logger()

	switch job.WakeType {
	case models.WakeTypeScheduled:
		// Keep the cadence going regardless of this attempt's outcome.
		if err := s.scheduleNext(ctx, job); err != nil {
			logger.Error().Err(err).Msg("failed to schedule next wake")
		}

		acquired, err := s.locks.Acquire(ctx, job.EntityID)
		if err != nil {
			s.finishJob(ctx, job, models.WakeJobStatusFailed, err.Error())
			return
		}
		if !acquired {
			logger.Debug().Msg("chain already running, skipping scheduled wake")
			s.recordContention()
			s.finishJob(ctx, job, models.WakeJobStatusCompleted, "")
			return
		}
	case models.WakeTypeContinue:
		// Prove the chain is alive before doing anything else.
		if err := s.locks.Refresh(ctx, job.EntityID); err != nil {
			logger.Error().Err(err).Msg("failed to refresh chain lock")
		}
	}

	// From here on we hold the lock and must reach exactly one release
	// decision.
	entity, err := s.entities.Get(ctx, job.EntityID)
	if err != nil {
		if !errors.Is(err, db.ErrEntityNotFound) {
			logger.Error().Err(err).Msg("failed to load entity")
		}
		s.releaseLock(ctx, job.EntityID)
		s.finishJob(ctx, job, models.WakeJobStatusFailed, "entity unavailable")
		return
	}
	if !entity.Pulse.Enabled {
		logger.Info().Msg("entity no longer pulse enabled, ending chain")
		s.releaseLock(ctx, job.EntityID)
		s.finishJob(ctx, job, models.WakeJobStatusCompleted, "")
		return
	}

	result, err := s.orchestrator.RunWake(ctx, entity, pulse.WakeRequest{
		WakeType:    job.WakeType,
		ChainDepth:  job.ChainDepth,
		TaskContext: job.TaskContext,
	})
	if err != nil {
		logger.Error().Err(err).Msg("wake attempt could not run")
		s.releaseLock(ctx, job.EntityID)
		s.finishJob(ctx, job, models.WakeJobStatusFailed, err.Error())
		return
	}

	if result.Signal == models.WakeSignalContinue {
		continuation := &models.WakeJob{
			EntityID:    entity.ID,
			EntityName:  entity.Name,
			WakeType:    models.WakeTypeContinue,
			ChainDepth:  result.ChainDepth,
			TaskContext: result.TaskContext,
			RunAt:       time.Now().UTC().Add(s.config.ContinueDelay),
		}
		if err := s.jobs.Enqueue(ctx, continuation); err != nil {
			// Fail safe: better to end the chain one attempt early
			// than to leak the lock until its TTL.
			logger.Error().Err(err).Msg("failed to enqueue continuation, releasing lock")
			s.releaseLock(ctx, job.EntityID)
			s.publish(ctx, events.EventWakeFailed, job.EntityID, map[string]any{
				"job_id": job.ID,
				"error":  "continuation enqueue failed",
			})
		} else {
			logger.Info().Int("next_depth", result.ChainDepth).Msg("continuation enqueued, lock transferred")
		}
	} else {
		s.releaseLock(ctx, job.EntityID)
	}

	s.finishJob(ctx, job, models.WakeJobStatusCompleted, "")
	s.recordOutcome(job, result, time.Since(start))
}

// scheduleNext enqueues the entity's next scheduled wake one interval out.
// Skipped when a pending scheduled job already exists, so an operator-
// triggered immediate wake does not double the cadence.
func (s *Scheduler) scheduleNext(ctx context.Context, job *models.WakeJob) error {
	entity, err := s.entities.Get(ctx, job.EntityID)
	if err != nil {
		if errors.Is(err, db.ErrEntityNotFound) {
			return nil
		}
		return err
	}
	if !entity.Pulse.Enabled {
		return nil
	}

	pending, err := s.jobs.PendingForEntity(ctx, entity.ID)
	if err != nil {
		return err
	}
	for _, p := range pending {
		if p.WakeType == models.WakeTypeScheduled {
			return nil
		}
	}

	return s.jobs.Enqueue(ctx, &models.WakeJob{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		WakeType:   models.WakeTypeScheduled,
		RunAt:      time.Now().UTC().Add(entity.Pulse.WakeInterval()),
	})
}

// TriggerWake enqueues an immediate scheduled wake for an entity.
func (s *Scheduler) TriggerWake(ctx context.Context, entityID string) error {
	entity, err := s.entities.Get(ctx, entityID)
	if err != nil {
		return err
	}
	return s.jobs.Enqueue(ctx, &models.WakeJob{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		WakeType:   models.WakeTypeScheduled,
		RunAt:      time.Now().UTC(),
	})
}

func (s *Scheduler) finishJob(ctx context.Context, job *models.WakeJob, status models.WakeJobStatus, errorMsg string) {
	if err := s.jobs.Finish(ctx, job.ID, status, errorMsg); err != nil {
		s.logger.Error().Str("job_id", job.ID).Err(err).Msg("failed to finish wake job")
	}
}

func (s *Scheduler) releaseLock(ctx context.Context, entityID string) {
	if err := s.locks.Release(ctx, entityID); err != nil {
		s.logger.Error().Str("entity_id", entityID).Err(err).Msg("failed to release chain lock")
	}
}

func (s *Scheduler) publish(ctx context.Context, eventType events.EventType, entityID string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.New(eventType, entityID, payload))
}

func (s *Scheduler) recordContention() {
	s.statsMu.Lock()
	s.stats.LockContention++
	s.statsMu.Unlock()
}

func (s *Scheduler) recordOutcome(job *models.WakeJob, result *models.WakeResult, duration time.Duration) {
	now := time.Now().UTC()

	s.statsMu.Lock()
	s.stats.JobsHandled++
	s.stats.LastWakeAt = &now
	switch result.Signal {
	case models.WakeSignalRest:
		s.stats.WakesCompleted++
	case models.WakeSignalContinue:
		s.stats.ChainsContinued++
	case models.WakeSignalSkipped:
		s.stats.WakesSkipped++
	case models.WakeSignalError:
		s.stats.WakesFailed++
	}
	s.statsMu.Unlock()

	event := DispatchEvent{
		JobID:      job.ID,
		EntityID:   job.EntityID,
		EntityName: job.EntityName,
		WakeType:   job.WakeType,
		Signal:     result.Signal,
		Error:      result.Error,
		Timestamp:  now,
		Duration:   duration,
	}
	select {
	case s.dispatchCh <- event:
	default:
		// Channel full, drop event
	}
}

// Stats returns a snapshot of scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// DispatchEvents returns the channel of dispatch events.
func (s *Scheduler) DispatchEvents() <-chan DispatchEvent {
	return s.dispatchCh
}
