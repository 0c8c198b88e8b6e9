package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/avatarworld/internal/http/response"
	"github.com/yungbote/avatarworld/internal/jobs/video"
	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
)

type VideoJobHandler struct {
	jobs *video.Processor
}

func NewVideoJobHandler(jobs *video.Processor) *VideoJobHandler {
	return &VideoJobHandler{jobs: jobs}
}

// POST /api/video-jobs
func (h *VideoJobHandler) Create(c *gin.Context) {
	var req video.JobSpec
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		response.RespondErr(c, fmt.Errorf("%w: prompt required", apperr.ErrInvalidArgument))
		return
	}
	out := h.jobs.Enqueue(c.Request.Context(), req)
	if out.Err != nil {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondCreated(c, gin.H{"job": out.Value[0]})
}

// GET /api/video-jobs/:id
func (h *VideoJobHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	out := h.jobs.Get(c.Request.Context(), jobID)
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	if out.Value == nil {
		response.RespondErr(c, fmt.Errorf("video job %s: %w", jobID, apperr.ErrNotFound))
		return
	}
	response.RespondOK(c, gin.H{"job": out.Value})
}

// GET /api/video-jobs/stats
func (h *VideoJobHandler) Stats(c *gin.Context) {
	out := h.jobs.Stats(c.Request.Context())
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"counts": out.Value})
}
