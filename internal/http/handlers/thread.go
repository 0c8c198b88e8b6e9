package handlers

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/avatarworld/internal/conversation"
	"github.com/yungbote/avatarworld/internal/http/response"
	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
)

type ThreadHandler struct {
	tracker *conversation.Tracker
}

func NewThreadHandler(tracker *conversation.Tracker) *ThreadHandler {
	return &ThreadHandler{tracker: tracker}
}

type startThreadRequest struct {
	Participants []any `json:"participants"`
	// DurationMS overrides the default TTL; negative disables expiry.
	DurationMS *int64         `json:"duration_ms,omitempty"`
	MaxTurns   int            `json:"max_turns,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Proactive  bool           `json:"proactive,omitempty"`
	ForceNew   bool           `json:"force_new,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// GET /api/channels/:id/threads
func (h *ThreadHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"threads": h.tracker.GetActiveThreads(c.Param("id"))})
}

// maxDurationMS is the largest duration_ms that fits in a time.Duration.
const maxDurationMS = math.MaxInt64 / int64(time.Millisecond)

// POST /api/channels/:id/threads
func (h *ThreadHandler) Start(c *gin.Context) {
	var req startThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	opts := conversation.StartOptions{
		MaxTurns:  req.MaxTurns,
		Mode:      conversation.Mode(req.Mode),
		Proactive: req.Proactive,
		ForceNew:  req.ForceNew,
		Metadata:  req.Metadata,
	}
	if req.DurationMS != nil {
		if *req.DurationMS > maxDurationMS {
			response.RespondErr(c, fmt.Errorf("%w: duration_ms exceeds %d", apperr.ErrInvalidArgument, maxDurationMS))
			return
		}
		opts.Duration = time.Duration(*req.DurationMS) * time.Millisecond
		if *req.DurationMS < 0 {
			opts.Duration = -1
		}
	}
	th, err := h.tracker.StartThread(c.Param("id"), req.Participants, opts)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"thread": th})
}

// GET /api/channels/:id/threads/:threadId
func (h *ThreadHandler) Get(c *gin.Context) {
	th, ok := h.tracker.GetThread(c.Param("id"), c.Param("threadId"))
	if !ok {
		response.RespondErr(c, fmt.Errorf("thread %s: %w", c.Param("threadId"), apperr.ErrNotFound))
		return
	}
	response.RespondOK(c, gin.H{"thread": th})
}

type recordTurnRequest struct {
	Participant any `json:"participant"`
}

// POST /api/channels/:id/threads/:threadId/turns
func (h *ThreadHandler) RecordTurn(c *gin.Context) {
	var req recordTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	th, err := h.tracker.RecordTurn(c.Param("id"), req.Participant, c.Param("threadId"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"thread": th})
}

// DELETE /api/channels/:id/threads/:threadId[?reason=...]
func (h *ThreadHandler) End(c *gin.Context) {
	reason := c.DefaultQuery("reason", conversation.EndReasonManual)
	th, ok := h.tracker.EndThread(c.Param("id"), c.Param("threadId"), reason)
	if !ok {
		response.RespondErr(c, fmt.Errorf("thread %s: %w", c.Param("threadId"), apperr.ErrNotFound))
		return
	}
	response.RespondOK(c, gin.H{"thread": th})
}

// GET /api/threads/stats
func (h *ThreadHandler) Stats(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"stats":          h.tracker.Stats(),
		"recently_ended": h.tracker.RecentlyEnded(),
	})
}
