package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/avatarworld/internal/notify"
	"github.com/yungbote/avatarworld/internal/platform/logger"
	"github.com/yungbote/avatarworld/internal/ratelimit"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:aw_app_"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("VIDEO_GENERATOR_URL", "")

	a, err := NewWithLogger(context.Background(), logger.NewNop(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func do(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestAppWiring(t *testing.T) {
	a := newTestApp(t)
	h := a.Server.Engine

	code, _ := do(t, h, http.MethodGet, "/healthcheck", nil)
	require.Equal(t, http.StatusOK, code)

	item := map[string]any{"items": []map[string]any{{"type": "respond", "channel_id": "c1", "avatar_id": "a1", "priority": 2}}}
	code, body := do(t, h, http.MethodPost, "/api/assignments?unique=true", item)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["inserted"])
	_, body = do(t, h, http.MethodPost, "/api/assignments?unique=true", item)
	require.EqualValues(t, 0, body["inserted"])

	code, body = do(t, h, http.MethodPost, "/api/assignments/claim", map[string]any{"worker_id": "w1", "types": []string{"respond"}})
	require.Equal(t, http.StatusOK, code)
	claimed := body["assignment"].(map[string]any)
	require.Equal(t, "claimed", claimed["status"])

	code, body = do(t, h, http.MethodPost, "/api/assignments/"+claimed["id"].(string)+"/complete", map[string]any{"result": map[string]any{"ok": true}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["updated"])

	code, body = do(t, h, http.MethodPost, "/api/channels/c1/threads", map[string]any{"participants": []any{"p", 7}})
	require.Equal(t, http.StatusOK, code)
	thread := body["thread"].(map[string]any)

	code, _ = do(t, h, http.MethodPost, "/api/channels/c1/threads", map[string]any{"participants": []any{}})
	require.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, h, http.MethodPost, "/api/channels/c1/threads/"+thread["id"].(string)+"/turns", map[string]any{"participant": 7})
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["thread"].(map[string]any)["turn_count"])

	code, body = do(t, h, http.MethodPost, "/api/video-jobs", map[string]any{"prompt": "a parade", "notify": "c1"})
	require.Equal(t, http.StatusCreated, code)
	job := body["job"].(map[string]any)
	code, body = do(t, h, http.MethodGet, "/api/video-jobs/"+job["id"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "queued", body["job"].(map[string]any)["status"])

	code, _ = do(t, h, http.MethodGet, "/api/video-jobs/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestAppStartRegistersTasks(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.Start())

	names := []string{}
	for _, task := range a.Scheduler.Tasks() {
		names = append(names, task.Name)
	}
	require.Equal(t, []string{TaskThreadPrune, TaskThreadStateRefresh, TaskVideoJobs}, names)

	require.NoError(t, a.Scheduler.RunNow(TaskThreadStateRefresh))
	require.NoError(t, a.Scheduler.RunNow(TaskThreadPrune))
}

func TestRedisBackedLimiterAndNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	gin.SetMode(gin.TestMode)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:aw_app_"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("REDIS_ADDR", mr.Addr())

	a, err := NewWithLogger(context.Background(), logger.NewNop(), "")
	require.NoError(t, err)
	defer func() { _ = a.Shutdown(context.Background()) }()

	require.NotNil(t, a.Clients.Redis)
	_, ok := a.Services.Limiter.(*ratelimit.Fallback)
	require.True(t, ok)
}

func TestStartWatchesNotifyBus(t *testing.T) {
	mr := miniredis.RunT(t)
	gin.SetMode(gin.TestMode)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:aw_app_"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("VIDEO_GENERATOR_URL", "")

	a, err := NewWithLogger(context.Background(), logger.NewNop(), "")
	require.NoError(t, err)
	defer func() { _ = a.Shutdown(context.Background()) }()
	require.NoError(t, a.Start())
	require.NotNil(t, a.stopNotifyWatch)

	msg := notify.Message{Destination: "c1", Event: notify.EventVideoReady}
	require.NoError(t, a.Services.Notifier.Notify(context.Background(), msg))
	require.Eventually(t, func() bool { return a.notificationsSeen.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
}
