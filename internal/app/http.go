package app

import (
	httpserver "github.com/yungbote/avatarworld/internal/http"
	httpH "github.com/yungbote/avatarworld/internal/http/handlers"
	"github.com/yungbote/avatarworld/internal/platform/logger"
	"github.com/yungbote/avatarworld/internal/scheduler"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Assignment  *httpH.AssignmentHandler
	Thread      *httpH.ThreadHandler
	ThreadState *httpH.ThreadStateHandler
	VideoJob    *httpH.VideoJobHandler
}

func wireHandlers(log *logger.Logger, services Services, sched *scheduler.Driver) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(sched),
		Assignment:  httpH.NewAssignmentHandler(services.Queue),
		Thread:      httpH.NewThreadHandler(services.Tracker),
		ThreadState: httpH.NewThreadStateHandler(services.ThreadState),
		VideoJob:    httpH.NewVideoJobHandler(services.VideoJobs),
	}
}

func wireServer(log *logger.Logger, serviceName string, handlers Handlers) *httpserver.Server {
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:                log,
		ServiceName:        serviceName,
		HealthHandler:      handlers.Health,
		AssignmentHandler:  handlers.Assignment,
		ThreadHandler:      handlers.Thread,
		ThreadStateHandler: handlers.ThreadState,
		VideoJobHandler:    handlers.VideoJob,
	})
}
