// Package config handles Pulse configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for Pulse.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Agent invocation service settings
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`

	// Scheduler settings
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// Pulse log retention settings
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
}

// GlobalConfig contains global Pulse settings.
type GlobalConfig struct {
	// DataDir is where Pulse stores its data (default: ~/.local/share/pulse).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/pulse).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// AgentConfig contains agent invocation service settings.
type AgentConfig struct {
	// Endpoint is the base URL of the agent invocation service.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// Timeout bounds a single invocation.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SchedulerConfig contains wake scheduler settings.
type SchedulerConfig struct {
	// TickInterval is how often the wake queue is polled.
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`

	// StartupDelay postpones the first wake after boot.
	StartupDelay time.Duration `yaml:"startup_delay" mapstructure:"startup_delay"`

	// ContinueDelay is the gap before a chain continuation fires.
	ContinueDelay time.Duration `yaml:"continue_delay" mapstructure:"continue_delay"`

	// MaxConcurrentWakes bounds concurrent wake jobs across entities.
	MaxConcurrentWakes int `yaml:"max_concurrent_wakes" mapstructure:"max_concurrent_wakes"`

	// ClaimBatch is the maximum number of due jobs claimed per poll.
	ClaimBatch int `yaml:"claim_batch" mapstructure:"claim_batch"`
}

// RetentionConfig controls pruning of settled pulse log entries.
type RetentionConfig struct {
	// Enabled turns the background cleanup job on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// MaxAge prunes settled entries older than this. Zero disables age pruning.
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`

	// MaxCount caps the total number of retained entries. Zero disables.
	MaxCount int `yaml:"max_count" mapstructure:"max_count"`

	// CleanupInterval is how often the cleanup job runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`

	// BatchSize bounds deletes per pass so cleanup never holds long locks.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`

	// ArchiveBeforeDelete writes pruned entries to JSONL archives first.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete" mapstructure:"archive_before_delete"`

	// ArchiveDir overrides the archive location (default: DataDir/archives).
	ArchiveDir string `yaml:"archive_dir" mapstructure:"archive_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "pulse"),
			ConfigDir: filepath.Join(homeDir, ".config", "pulse"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/pulse.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Agent: AgentConfig{
			Endpoint: "http://localhost:8800",
			Timeout:  10 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			TickInterval:       5 * time.Second,
			StartupDelay:       30 * time.Second,
			ContinueDelay:      2 * time.Second,
			MaxConcurrentWakes: 5,
			ClaimBatch:         10,
		},
		Retention: RetentionConfig{
			Enabled:         true,
			MaxAge:          30 * 24 * time.Hour,
			MaxCount:        10000,
			CleanupInterval: time.Hour,
			BatchSize:       200,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Global.DataDir == "" {
		return fmt.Errorf("global.data_dir is required")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is invalid (trace, debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is invalid (json, console)", c.Logging.Format)
	}

	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database.max_connections must be positive")
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}

	if c.Agent.Endpoint == "" {
		return fmt.Errorf("agent.endpoint is required")
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive")
	}

	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	if c.Scheduler.MaxConcurrentWakes <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_wakes must be positive")
	}

	if c.Retention.Enabled {
		if c.Retention.CleanupInterval <= 0 {
			return fmt.Errorf("retention.cleanup_interval must be positive")
		}
		if c.Retention.BatchSize <= 0 {
			return fmt.Errorf("retention.batch_size must be positive")
		}
	}

	return nil
}

// EnsureDirectories creates the data and config directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the configured database path, defaulting to a file
// inside the data directory.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "pulse.db")
}
