package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/logging"
	"github.com/Enntity/pulse/internal/models"
)

// RetentionConfig controls pruning of settled log entries.
type RetentionConfig struct {
	// MaxAge prunes settled entries older than this. Zero disables age pruning.
	MaxAge time.Duration

	// MaxCount caps the total number of retained entries. Zero disables.
	MaxCount int

	// CleanupInterval is how often the background cleanup runs.
	CleanupInterval time.Duration

	// BatchSize bounds deletes per pass.
	BatchSize int

	// ArchiveBeforeDelete writes pruned entries to JSONL archives first.
	ArchiveBeforeDelete bool

	// ArchiveDir is where archives are written.
	ArchiveDir string
}

// RetentionStats describes cleanup work done so far.
type RetentionStats struct {
	LastCleanup   time.Time  `json:"last_cleanup"`
	TotalDeleted  int64      `json:"total_deleted"`
	TotalArchived int64      `json:"total_archived"`
	LogCount      int64      `json:"log_count"`
	OldestEntry   *time.Time `json:"oldest_entry,omitempty"`
}

// RetentionService prunes settled pulse log entries on a schedule. In-flight
// entries are never touched; the sweeper settles those first.
type RetentionService struct {
	cfg    RetentionConfig
	logs   *db.PulseLogRepository
	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu            sync.Mutex
	running       bool
	lastCleanup   time.Time
	totalDeleted  int64
	totalArchived int64
}

// NewRetentionService creates a retention service.
func NewRetentionService(cfg RetentionConfig, logs *db.PulseLogRepository) *RetentionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	return &RetentionService{
		cfg:    cfg,
		logs:   logs,
		logger: logging.Component("retention"),
		stopCh: make(chan struct{}),
	}
}

// Start runs an initial cleanup and begins the background job.
func (s *RetentionService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("retention service already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("cleanup_interval", s.cfg.CleanupInterval).
		Dur("max_age", s.cfg.MaxAge).
		Int("max_count", s.cfg.MaxCount).
		Bool("archive_before_delete", s.cfg.ArchiveBeforeDelete).
		Msg("starting log retention service")

	if err := s.RunCleanup(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial cleanup failed")
	}

	s.wg.Add(1)
	go s.cleanupLoop(ctx)

	return nil
}

// Stop stops the background job.
func (s *RetentionService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("retention service stopped")
}

// RunCleanup runs a single cleanup cycle.
func (s *RetentionService) RunCleanup(ctx context.Context) error {
	start := time.Now()

	var deleted, archived int64

	if s.cfg.MaxAge > 0 {
		cutoff := time.Now().Add(-s.cfg.MaxAge)
		d, a, err := s.pruneOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup by age failed: %w", err)
		}
		deleted += d
		archived += a
	}

	if s.cfg.MaxCount > 0 {
		d, a, err := s.pruneExcess(ctx, s.cfg.MaxCount)
		if err != nil {
			return fmt.Errorf("cleanup by count failed: %w", err)
		}
		deleted += d
		archived += a
	}

	s.mu.Lock()
	s.lastCleanup = start
	s.totalDeleted += deleted
	s.totalArchived += archived
	s.mu.Unlock()

	if deleted > 0 {
		s.logger.Info().
			Int64("deleted", deleted).
			Int64("archived", archived).
			Dur("duration", time.Since(start)).
			Msg("retention cleanup completed")
	} else {
		s.logger.Debug().Msg("retention cleanup completed, nothing to prune")
	}

	return nil
}

// Stats returns current retention statistics.
func (s *RetentionService) Stats(ctx context.Context) (*RetentionStats, error) {
	s.mu.Lock()
	stats := &RetentionStats{
		LastCleanup:   s.lastCleanup,
		TotalDeleted:  s.totalDeleted,
		TotalArchived: s.totalArchived,
	}
	s.mu.Unlock()

	count, err := s.logs.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pulse logs: %w", err)
	}
	stats.LogCount = count

	oldest, err := s.logs.OldestCreatedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest pulse log: %w", err)
	}
	stats.OldestEntry = oldest

	return stats, nil
}

func (s *RetentionService) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.RunCleanup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("retention cleanup failed")
			}
		}
	}
}

func (s *RetentionService) pruneOlderThan(ctx context.Context, cutoff time.Time) (deleted, archived int64, err error) {
	for {
		select {
		case <-ctx.Done():
			return deleted, archived, ctx.Err()
		default:
		}

		entries, err := s.logs.ListSettledOlderThan(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return deleted, archived, err
		}
		if len(entries) == 0 {
			return deleted, archived, nil
		}

		d, a, err := s.deleteBatch(ctx, entries)
		deleted += d
		archived += a
		if err != nil {
			return deleted, archived, err
		}
		if len(entries) < s.cfg.BatchSize {
			return deleted, archived, nil
		}
	}
}

func (s *RetentionService) pruneExcess(ctx context.Context, maxCount int) (deleted, archived int64, err error) {
	total, err := s.logs.Count(ctx)
	if err != nil {
		return 0, 0, err
	}

	excess := total - int64(maxCount)
	for excess > 0 {
		select {
		case <-ctx.Done():
			return deleted, archived, ctx.Err()
		default:
		}

		batch := s.cfg.BatchSize
		if int64(batch) > excess {
			batch = int(excess)
		}

		entries, err := s.logs.ListSettledOldest(ctx, batch)
		if err != nil {
			return deleted, archived, err
		}
		if len(entries) == 0 {
			return deleted, archived, nil
		}

		d, a, err := s.deleteBatch(ctx, entries)
		deleted += d
		archived += a
		if err != nil {
			return deleted, archived, err
		}
		excess -= d
	}

	return deleted, archived, nil
}

func (s *RetentionService) deleteBatch(ctx context.Context, entries []*models.PulseLog) (deleted, archived int64, err error) {
	if s.cfg.ArchiveBeforeDelete {
		if err := s.archiveEntries(entries); err != nil {
			return 0, 0, fmt.Errorf("archive failed: %w", err)
		}
		archived = int64(len(entries))
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	deleted, err = s.logs.DeleteByIDs(ctx, ids)
	return deleted, archived, err
}

// archiveEntries appends entries to per-day JSONL files in the archive dir.
func (s *RetentionService) archiveEntries(entries []*models.PulseLog) error {
	if len(entries) == 0 {
		return nil
	}
	if s.cfg.ArchiveDir == "" {
		return fmt.Errorf("archive directory not configured")
	}

	if err := os.MkdirAll(s.cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	byDate := make(map[string][]*models.PulseLog)
	for _, entry := range entries {
		date := entry.CreatedAt.Format("2006-01-02")
		byDate[date] = append(byDate[date], entry)
	}

	for date, dateEntries := range byDate {
		path := filepath.Join(s.cfg.ArchiveDir, fmt.Sprintf("pulse_logs_%s.jsonl", date))

		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open archive file: %w", err)
		}

		for _, entry := range dateEntries {
			data, err := json.Marshal(entry)
			if err != nil {
				file.Close()
				return fmt.Errorf("failed to marshal log entry: %w", err)
			}
			if _, err := file.Write(append(data, '\n')); err != nil {
				file.Close()
				return fmt.Errorf("failed to write log entry: %w", err)
			}
		}

		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close archive file: %w", err)
		}
	}

	return nil
}
