package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/avatarworld/internal/platform/logger"
)

func TestRedisNotifierRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	log := logger.NewNop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 1)
	require.NoError(t, Subscribe(ctx, rdb, log, "test:notify", func(m Message) { got <- m }))

	n := NewRedis(rdb, log, "test:notify")
	require.NoError(t, n.Notify(ctx, Message{Destination: "discord:123", Event: EventVideoReady, Data: map[string]string{"url": "u"}}))

	select {
	case m := <-got:
		require.Equal(t, "discord:123", m.Destination)
		require.Equal(t, EventVideoReady, m.Event)
		require.False(t, m.SentAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}

func TestLogNotifier(t *testing.T) {
	require.NoError(t, NewLog(logger.NewNop()).Notify(context.Background(), Message{Destination: "x"}))
}
