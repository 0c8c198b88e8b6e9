package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/avatarworld/internal/platform/logger"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("THREAD_TTL_MS", "120000")
	t.Setenv("THREAD_MAX_TURNS", "4")
	t.Setenv("THREAD_EXTEND_ON_ACTIVITY", "false")
	t.Setenv("VIDEO_JOB_POLL_INTERVAL_MS", "5000")
	t.Setenv("VIDEO_JOB_MAX_CONCURRENT", "3")

	cfg, err := LoadConfig(logger.NewNop(), "")
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, cfg.Threads.DefaultTTL)
	require.Equal(t, 4, cfg.Threads.DefaultMaxTurns)
	require.False(t, cfg.Threads.ExtendOnActivity)
	require.Equal(t, time.Minute, cfg.Threads.CleanupInterval)
	require.Equal(t, 5*time.Second, cfg.VideoJobs.PollInterval)
	require.Equal(t, 3, cfg.VideoJobs.MaxConcurrent)
	require.Equal(t, 3, cfg.VideoJobs.MaxAttempts)
	require.Equal(t, 10*time.Second, cfg.Queue.DedupeTTL)
	require.Equal(t, time.Minute, cfg.ThreadState.StaleAfter)
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/aw")
	t.Setenv("THREAD_MAX_TURNS", "4")

	path := filepath.Join(t.TempDir(), "avatarworld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_driver: sqlite
database_url: "file::memory:"
threads:
  max_turns: 6
  ttl: 90s
video_jobs:
  max_attempts: 5
  backoff_base: 2m
`), 0o600))

	cfg, err := LoadConfig(logger.NewNop(), path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 6, cfg.Threads.DefaultMaxTurns)
	require.Equal(t, 90*time.Second, cfg.Threads.DefaultTTL)
	require.True(t, cfg.Threads.ExtendOnActivity, "keys absent from the file keep their env value")
	require.Equal(t, 5, cfg.VideoJobs.MaxAttempts)
	require.Equal(t, 2*time.Minute, cfg.VideoJobs.BackoffBase)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("DB_DRIVER", "mongo")
	t.Setenv("DATABASE_URL", "x")
	_, err := LoadConfig(logger.NewNop(), "")
	require.ErrorContains(t, err, "DB_DRIVER")

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	_, err = LoadConfig(logger.NewNop(), "")
	require.ErrorContains(t, err, "DATABASE_URL")

	_, err = LoadConfig(logger.NewNop(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
