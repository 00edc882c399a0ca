package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
	require.Equal(t, 5*time.Second, cfg.Scheduler.TickInterval)
	require.Equal(t, 2*time.Second, cfg.Scheduler.ContinueDelay)
	require.Equal(t, 5, cfg.Scheduler.MaxConcurrentWakes)
	require.Equal(t, 10*time.Minute, cfg.Agent.Timeout)
	require.NotEmpty(t, cfg.Global.DataDir)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
scheduler:
  tick_interval: 1s
  max_concurrent_wakes: 2
agent:
  endpoint: http://agent.internal:9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, time.Second, cfg.Scheduler.TickInterval)
	require.Equal(t, 2, cfg.Scheduler.MaxConcurrentWakes)
	require.Equal(t, "http://agent.internal:9000", cfg.Agent.Endpoint)

	// Untouched keys keep their defaults.
	require.Equal(t, 2*time.Second, cfg.Scheduler.ContinueDelay)
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))

	loader := NewLoader()
	loader.SetConfigFile(path)
	_, err := loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "logging.level")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
}

func TestDatabasePathDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/var/lib/pulse"
	require.Equal(t, "/var/lib/pulse/pulse.db", cfg.DatabasePath())

	cfg.Database.Path = "/tmp/other.db"
	require.Equal(t, "/tmp/other.db", cfg.DatabasePath())
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(home, "data"), expandTilde("~/data"))
	require.Equal(t, home, expandTilde("~"))
	require.Equal(t, "/abs/path", expandTilde("/abs/path"))
	require.Equal(t, "", expandTilde(""))
}
