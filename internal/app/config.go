package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/avatarworld/internal/conversation"
	"github.com/yungbote/avatarworld/internal/jobs/video"
	"github.com/yungbote/avatarworld/internal/observability"
	"github.com/yungbote/avatarworld/internal/platform/envutil"
	"github.com/yungbote/avatarworld/internal/platform/logger"
	"github.com/yungbote/avatarworld/internal/queue"
	"github.com/yungbote/avatarworld/internal/threadstate"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogMode  string `yaml:"log_mode"`

	DBDriver    string `yaml:"db_driver"`
	DatabaseURL string `yaml:"database_url"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	RateLimitVideoPerMinute int           `yaml:"rate_limit_video_per_minute"`
	VideoGeneratorURL       string        `yaml:"video_generator_url"`
	VideoGeneratorTimeout   time.Duration `yaml:"video_generator_timeout"`

	Queue       queue.Config             `yaml:"queue"`
	Threads     conversation.Config      `yaml:"threads"`
	ThreadState threadstate.Config       `yaml:"thread_state"`
	VideoJobs   video.Config             `yaml:"video_jobs"`
	Otel        observability.OtelConfig `yaml:"otel"`
}

// LoadConfig reads .env (if present), then the environment, then overlays
// the YAML file at path. An empty path skips the overlay.
func LoadConfig(log *logger.Logger, path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to read .env", "error", err)
	}

	cfg := Config{
		HTTPAddr: envutil.String("HTTP_ADDR", ":8080", log),
		LogMode:  envutil.String("LOG_MODE", "development", log),

		DBDriver:    envutil.String("DB_DRIVER", "postgres", log),
		DatabaseURL: envutil.String("DATABASE_URL", "", log),

		RedisAddr:    envutil.String("REDIS_ADDR", "", log),
		RedisChannel: envutil.String("REDIS_CHANNEL", "avatarworld:notify", log),

		RateLimitVideoPerMinute: envutil.Int("RATE_LIMIT_VIDEO_PER_MINUTE", 2, log),
		VideoGeneratorURL:       envutil.String("VIDEO_GENERATOR_URL", "", log),
		VideoGeneratorTimeout:   envutil.Millis("VIDEO_GENERATOR_TIMEOUT_MS", 5*time.Minute, log),

		Queue: queue.Config{
			DedupeTTL: envutil.Millis("QUEUE_DEDUPE_TTL_MS", 10*time.Second, log),
		},
		Threads: conversation.Config{
			DefaultTTL:       envutil.Millis("THREAD_TTL_MS", 5*time.Minute, log),
			DefaultMaxTurns:  envutil.Int("THREAD_MAX_TURNS", 10, log),
			ExtendOnActivity: envutil.Bool("THREAD_EXTEND_ON_ACTIVITY", true, log),
			CleanupInterval:  envutil.Millis("THREAD_CLEANUP_INTERVAL_MS", time.Minute, log),
		},
		ThreadState: threadstate.Config{
			StaleAfter:      envutil.Millis("THREAD_STATE_STALE_MS", time.Minute, log),
			Lookback:        envutil.Millis("THREAD_STATE_LOOKBACK_MS", time.Hour, log),
			Limit:           envutil.Int("THREAD_STATE_LIMIT", 50, log),
			MessageWindow:   100,
			RecentWindow:    10,
			RefreshInterval: envutil.Millis("THREAD_STATE_REFRESH_INTERVAL_MS", 30*time.Second, log),
			Concurrency:     envutil.Int("THREAD_STATE_CONCURRENCY", 4, log),
		},
		VideoJobs: video.Config{
			PollInterval:   envutil.Millis("VIDEO_JOB_POLL_INTERVAL_MS", 15*time.Second, log),
			MaxAttempts:    envutil.Int("VIDEO_JOB_MAX_ATTEMPTS", 3, log),
			MaxConcurrent:  envutil.Int("VIDEO_JOB_MAX_CONCURRENT", 1, log),
			BackoffBase:    envutil.Millis("VIDEO_JOB_BACKOFF_BASE_MS", time.Minute, log),
			BackoffCap:     envutil.Millis("VIDEO_JOB_BACKOFF_CAP_MS", 15*time.Minute, log),
			Lease:          envutil.Millis("VIDEO_JOB_LEASE_MS", 10*time.Minute, log),
			RateLimitDefer: envutil.Millis("VIDEO_JOB_RATE_LIMIT_DEFER_MS", time.Minute, log),
			Resource:       "video",
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false, log),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "avatarworld", log),
			Environment: envutil.String("APP_ENV", "development", log),
			Version:     envutil.String("APP_VERSION", "", log),
			Exporter:    envutil.String("OTEL_EXPORTER", "otlp", log),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
			Headers:     observability.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			SampleRatio: 0.1,
		},
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DBDriver)) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("missing DATABASE_URL")
	}
	if c.Threads.DefaultMaxTurns < 1 {
		return fmt.Errorf("THREAD_MAX_TURNS must be at least 1")
	}
	if c.VideoJobs.MaxConcurrent < 1 {
		return fmt.Errorf("VIDEO_JOB_MAX_CONCURRENT must be at least 1")
	}
	return nil
}
