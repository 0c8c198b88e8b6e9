// Package ratelimit answers "may we hit resource X right now" for callers
// sharing an external service.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type Limiter interface {
	Allow(ctx context.Context, resource string) (bool, error)
}

// Redis is a fixed-window limiter shared by every process talking to the same
// redis. Each call consumes one slot of the current window.
type Redis struct {
	rdb    *goredis.Client
	log    *logger.Logger
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedis(rdb *goredis.Client, log *logger.Logger, limit int, window time.Duration) *Redis {
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{
		rdb:    rdb,
		log:    log.With("component", "RedisRateLimiter"),
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit",
		now:    time.Now,
	}
}

func (l *Redis) Allow(ctx context.Context, resource string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	bucket := l.now().UnixNano() / int64(l.window)
	key := fmt.Sprintf("%s:%s:%d", l.prefix, resource, bucket)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", resource, err)
	}
	allowed := incr.Val() <= l.limit
	if !allowed {
		l.log.Debug("Rate limited", "resource", resource, "count", incr.Val(), "limit", l.limit)
	}
	return allowed, nil
}

// Local is an in-process token bucket per resource, used when no redis is
// configured.
type Local struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLocal allows perWindow actions per window with a burst of perWindow.
// perWindow <= 0 allows everything.
func NewLocal(perWindow int, window time.Duration) *Local {
	l := &Local{limiters: map[string]*rate.Limiter{}}
	if perWindow <= 0 || window <= 0 {
		l.limit = rate.Inf
		return l
	}
	l.limit = rate.Limit(float64(perWindow) / window.Seconds())
	l.burst = perWindow
	return l
}

func (l *Local) Allow(_ context.Context, resource string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[resource]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[resource] = lim
	}
	l.mu.Unlock()
	return lim.Allow(), nil
}

// Fallback consults Primary and switches to Secondary when Primary errors, so
// a redis outage degrades to per-process limits instead of blocking work.
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
	Log       *logger.Logger
}

func (f *Fallback) Allow(ctx context.Context, resource string) (bool, error) {
	ok, err := f.Primary.Allow(ctx, resource)
	if err == nil {
		return ok, nil
	}
	if f.Log != nil {
		f.Log.Warn("Primary rate limiter failed, using local limiter", "resource", resource, "error", err)
	}
	return f.Secondary.Allow(ctx, resource)
}
