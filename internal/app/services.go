package app

import (
	"time"

	"github.com/yungbote/avatarworld/internal/conversation"
	"github.com/yungbote/avatarworld/internal/jobs/video"
	"github.com/yungbote/avatarworld/internal/notify"
	"github.com/yungbote/avatarworld/internal/platform/logger"
	"github.com/yungbote/avatarworld/internal/queue"
	"github.com/yungbote/avatarworld/internal/ratelimit"
	"github.com/yungbote/avatarworld/internal/threadstate"
)

type Services struct {
	Limiter     ratelimit.Limiter
	Notifier    notify.Notifier
	Queue       *queue.Queue
	Tracker     *conversation.Tracker
	ThreadState *threadstate.Aggregator
	VideoJobs   *video.Processor
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	local := ratelimit.NewLocal(cfg.RateLimitVideoPerMinute, time.Minute)
	var limiter ratelimit.Limiter = local
	notifier := notify.NewLog(log)
	if clients.Redis != nil {
		limiter = &ratelimit.Fallback{
			Primary:   ratelimit.NewRedis(clients.Redis, log, cfg.RateLimitVideoPerMinute, time.Minute),
			Secondary: local,
			Log:       log,
		}
		notifier = notify.NewRedis(clients.Redis, log, cfg.RedisChannel)
	}

	return Services{
		Limiter:     limiter,
		Notifier:    notifier,
		Queue:       queue.New(repos.Assignment, log, cfg.Queue),
		Tracker:     conversation.NewTracker(log, cfg.Threads),
		ThreadState: threadstate.NewAggregator(log, repos.Activity, repos.Message, repos.ThreadState, cfg.ThreadState),
		VideoJobs:   video.NewProcessor(log, repos.VideoJob, limiter, notifier, clients.VideoGenerator, cfg.VideoJobs),
	}
}
