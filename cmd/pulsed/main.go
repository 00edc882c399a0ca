// Package main is the entry point for the pulsed daemon.
// pulsed runs the wake scheduler: it periodically wakes pulse-enabled
// entities, drives continuation chains, and records every attempt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/agent"
	"github.com/Enntity/pulse/internal/config"
	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/events"
	"github.com/Enntity/pulse/internal/logging"
	"github.com/Enntity/pulse/internal/pulse"
	"github.com/Enntity/pulse/internal/scheduler"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "", "config file (default is $HOME/.config/pulse/config.yaml)")
	logLevel := flag.String("log-level", "", "override logging level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override logging format (json, console)")
	flag.Parse()

	cfg, loader, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	logger := logging.Component("pulsed")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}

	if cfgUsed := loader.ConfigFileUsed(); cfgUsed != "" {
		logger.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Msg("pulsed starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(db.Config{
		Path:          cfg.DatabasePath(),
		MaxOpenConns:  cfg.Database.MaxConnections,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to open database")
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")
		os.Exit(1)
	}

	invoker, err := agent.NewClient(agent.Config{
		Endpoint: cfg.Agent.Endpoint,
		Timeout:  cfg.Agent.Timeout,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create agent client")
		os.Exit(1)
	}

	kv := db.NewKVRepository(database)
	entities := db.NewEntityRepository(database)
	jobs := db.NewWakeJobRepository(database)
	logs := db.NewPulseLogRepository(database)

	publisher := events.NewLogPublisher()
	locks := pulse.NewLockManager(kv)
	orchestrator := pulse.NewOrchestrator(
		logs,
		pulse.NewLedger(kv),
		pulse.NewContextStore(kv),
		pulse.NewSweeper(logs),
		invoker,
		publisher,
	)

	sched := scheduler.New(scheduler.Config{
		TickInterval:       cfg.Scheduler.TickInterval,
		StartupDelay:       cfg.Scheduler.StartupDelay,
		ContinueDelay:      cfg.Scheduler.ContinueDelay,
		MaxConcurrentWakes: cfg.Scheduler.MaxConcurrentWakes,
		ClaimBatch:         cfg.Scheduler.ClaimBatch,
	}, entities, jobs, locks, orchestrator, scheduler.WithPublisher(publisher))

	if err := sched.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start scheduler")
		os.Exit(1)
	}

	var retention *pulse.RetentionService
	if cfg.Retention.Enabled {
		archiveDir := cfg.Retention.ArchiveDir
		if archiveDir == "" {
			archiveDir = filepath.Join(cfg.Global.DataDir, "archives")
		}
		retention = pulse.NewRetentionService(pulse.RetentionConfig{
			MaxAge:              cfg.Retention.MaxAge,
			MaxCount:            cfg.Retention.MaxCount,
			CleanupInterval:     cfg.Retention.CleanupInterval,
			BatchSize:           cfg.Retention.BatchSize,
			ArchiveBeforeDelete: cfg.Retention.ArchiveBeforeDelete,
			ArchiveDir:          archiveDir,
		}, logs)
		if err := retention.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to start retention service")
		}
	}

	go logDispatches(ctx, sched, logger)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if err := sched.Stop(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown failed")
	}
	if retention != nil {
		retention.Stop()
	}
}

// logDispatches drains dispatch events into the debug log.
func logDispatches(ctx context.Context, sched *scheduler.Scheduler, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sched.DispatchEvents():
			logger.Debug().
				Str("job_id", ev.JobID).
				Str("entity_id", ev.EntityID).
				Str("entity_name", ev.EntityName).
				Str("wake_type", string(ev.WakeType)).
				Str("signal", string(ev.Signal)).
				Str("error", ev.Error).
				Dur("duration", ev.Duration).
				Msg("wake job handled")
		}
	}
}

func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.SetConfigFile(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}
