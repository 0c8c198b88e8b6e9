// Package notify delivers fire-and-forget messages to chat destinations.
// Bots (Discord, Telegram) subscribe on the other side of the bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type Event string

const (
	EventVideoReady  Event = "VideoReady"
	EventVideoFailed Event = "VideoFailed"
)

type Message struct {
	Destination string    `json:"destination"`
	Event       Event     `json:"event"`
	Data        any       `json:"data,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type redisNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedis(rdb *goredis.Client, log *logger.Logger, channel string) Notifier {
	if channel == "" {
		channel = "avatarworld:notify"
	}
	return &redisNotifier{
		log:     log.With("service", "RedisNotifier"),
		rdb:     rdb,
		channel: channel,
	}
}

func (n *redisNotifier) Notify(ctx context.Context, msg Message) error {
	if n == nil || n.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, raw).Err()
}

// Subscribe forwards bus messages to onMsg until ctx is done.
func Subscribe(ctx context.Context, rdb *goredis.Client, log *logger.Logger, channel string, onMsg func(Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	if channel == "" {
		channel = "avatarworld:notify"
	}
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Warn("bad notify payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

type logNotifier struct {
	log *logger.Logger
}

// NewLog writes notifications to the log, for deployments without a bus.
func NewLog(log *logger.Logger) Notifier {
	return &logNotifier{log: log.With("service", "LogNotifier")}
}

func (n *logNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Info("Notification", "destination", msg.Destination, "event", msg.Event)
	return nil
}
