package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/avatarworld/internal/http/response"
	"github.com/yungbote/avatarworld/internal/scheduler"
)

type HealthHandler struct {
	sched *scheduler.Driver
}

func NewHealthHandler(sched *scheduler.Driver) *HealthHandler {
	return &HealthHandler{sched: sched}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/scheduler/tasks
func (h *HealthHandler) SchedulerTasks(c *gin.Context) {
	if h.sched == nil {
		response.RespondOK(c, gin.H{"tasks": []scheduler.TaskInfo{}})
		return
	}
	response.RespondOK(c, gin.H{"tasks": h.sched.Tasks()})
}
