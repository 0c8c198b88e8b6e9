package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/avatarworld/internal/clients/redis"
	types "github.com/yungbote/avatarworld/internal/domain/jobs"
	"github.com/yungbote/avatarworld/internal/jobs/video"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type Clients struct {
	Redis          *goredis.Client
	VideoGenerator video.Generator
}

var errNoGenerator = errors.New("no video generator configured (set VIDEO_GENERATOR_URL)")

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis is optional; without it rate limits and notifications stay in-process.
	var rdb *goredis.Client
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		c, err := redisclient.NewClient(ctx, log, cfg.RedisAddr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		rdb = c
	}

	var gen video.Generator
	if strings.TrimSpace(cfg.VideoGeneratorURL) != "" {
		g, err := video.NewHTTPGenerator(log, cfg.VideoGeneratorURL, cfg.VideoGeneratorTimeout)
		if err != nil {
			if rdb != nil {
				_ = rdb.Close()
			}
			return Clients{}, fmt.Errorf("init video generator: %w", err)
		}
		gen = g
	} else {
		log.Warn("VIDEO_GENERATOR_URL not set; video jobs will fail until configured")
		gen = video.GeneratorFunc(func(context.Context, *types.VideoJob) (any, error) {
			return nil, errNoGenerator
		})
	}

	return Clients{Redis: rdb, VideoGenerator: gen}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
