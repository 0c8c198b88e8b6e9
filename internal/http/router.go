package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/avatarworld/internal/http/handlers"
	httpMW "github.com/yungbote/avatarworld/internal/http/middleware"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string

	HealthHandler      *httpH.HealthHandler
	AssignmentHandler  *httpH.AssignmentHandler
	ThreadHandler      *httpH.ThreadHandler
	ThreadStateHandler *httpH.ThreadStateHandler
	VideoJobHandler    *httpH.VideoJobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "avatarworld"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.HealthHandler != nil {
			api.GET("/scheduler/tasks", cfg.HealthHandler.SchedulerTasks)
		}

		// Work queue
		if cfg.AssignmentHandler != nil {
			api.POST("/assignments", cfg.AssignmentHandler.Enqueue)
			api.POST("/assignments/claim", cfg.AssignmentHandler.Claim)
			api.GET("/assignments/stats", cfg.AssignmentHandler.Stats)
			api.GET("/assignments/:id", cfg.AssignmentHandler.Get)
			api.POST("/assignments/:id/complete", cfg.AssignmentHandler.Complete)
			api.POST("/assignments/:id/fail", cfg.AssignmentHandler.Fail)
		}

		// Conversation threads
		if cfg.ThreadHandler != nil {
			api.GET("/threads/stats", cfg.ThreadHandler.Stats)
			api.GET("/channels/:id/threads", cfg.ThreadHandler.List)
			api.POST("/channels/:id/threads", cfg.ThreadHandler.Start)
			api.GET("/channels/:id/threads/:threadId", cfg.ThreadHandler.Get)
			api.POST("/channels/:id/threads/:threadId/turns", cfg.ThreadHandler.RecordTurn)
			api.DELETE("/channels/:id/threads/:threadId", cfg.ThreadHandler.End)
		}

		// Channel activity snapshots
		if cfg.ThreadStateHandler != nil {
			api.GET("/thread-states", cfg.ThreadStateHandler.List)
			api.POST("/channels/:id/activity", cfg.ThreadStateHandler.RecordActivity)
			api.POST("/channels/:id/thread-state/refresh", cfg.ThreadStateHandler.Recompute)
		}

		// Video jobs
		if cfg.VideoJobHandler != nil {
			api.POST("/video-jobs", cfg.VideoJobHandler.Create)
			api.GET("/video-jobs/stats", cfg.VideoJobHandler.Stats)
			api.GET("/video-jobs/:id", cfg.VideoJobHandler.Get)
		}
	}

	return r
}
