package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/avatarworld/internal/domain/assignments"
	"github.com/yungbote/avatarworld/internal/http/response"
	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
	"github.com/yungbote/avatarworld/internal/queue"
)

type AssignmentHandler struct {
	queue *queue.Queue
}

func NewAssignmentHandler(q *queue.Queue) *AssignmentHandler {
	return &AssignmentHandler{queue: q}
}

type assignmentInput struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id"`
	AvatarID  string          `json:"avatar_id"`
	Priority  int             `json:"priority"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type enqueueRequest struct {
	Items []assignmentInput `json:"items"`
}

// POST /api/assignments[?unique=true]
func (h *AssignmentHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	items := make([]*types.Assignment, 0, len(req.Items))
	for i, in := range req.Items {
		if strings.TrimSpace(in.ChannelID) == "" || strings.TrimSpace(in.AvatarID) == "" {
			response.RespondErr(c, fmt.Errorf("%w: items[%d] needs channel_id and avatar_id", apperr.ErrInvalidArgument, i))
			return
		}
		typ, err := types.ParseType(in.Type)
		if err != nil {
			response.RespondErr(c, fmt.Errorf("%w: items[%d]: %v", apperr.ErrInvalidArgument, i, err))
			return
		}
		items = append(items, &types.Assignment{
			Type:      typ,
			ChannelID: in.ChannelID,
			AvatarID:  in.AvatarID,
			Priority:  in.Priority,
			Payload:   datatypes.JSON(in.Payload),
		})
	}

	unique, _ := strconv.ParseBool(c.DefaultQuery("unique", "false"))
	res := h.queue.Enqueue
	if unique {
		res = h.queue.EnqueueUnique
	}
	out := res(c.Request.Context(), items)
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"inserted": out.Value})
}

type claimRequest struct {
	WorkerID string   `json:"worker_id"`
	Types    []string `json:"types"`
}

// POST /api/assignments/claim
func (h *AssignmentHandler) Claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		response.RespondErr(c, fmt.Errorf("%w: worker_id required", apperr.ErrInvalidArgument))
		return
	}
	kinds := make([]types.Type, 0, len(req.Types))
	for _, t := range req.Types {
		kind := types.Type(strings.TrimSpace(t))
		if !kind.Valid() {
			response.RespondErr(c, fmt.Errorf("%w: unknown assignment type %q", apperr.ErrInvalidArgument, t))
			return
		}
		kinds = append(kinds, kind)
	}
	out := h.queue.ClaimNext(c.Request.Context(), req.WorkerID, kinds)
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"assignment": out.Value})
}

type completeRequest struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// POST /api/assignments/:id/complete
func (h *AssignmentHandler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assignment_id", err)
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	var result any
	if len(req.Result) > 0 {
		result = req.Result
	}
	out := h.queue.Complete(c.Request.Context(), id, result)
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"updated": out.Value})
}

type failRequest struct {
	Error string `json:"error"`
}

// POST /api/assignments/:id/fail
func (h *AssignmentHandler) Fail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assignment_id", err)
		return
	}
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	msg := strings.TrimSpace(req.Error)
	if msg == "" {
		msg = "failed"
	}
	out := h.queue.Fail(c.Request.Context(), id, errors.New(msg))
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"updated": out.Value})
}

// GET /api/assignments/:id
func (h *AssignmentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_assignment_id", err)
		return
	}
	out := h.queue.Get(c.Request.Context(), id)
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	if out.Value == nil {
		response.RespondErr(c, fmt.Errorf("assignment %s: %w", id, apperr.ErrNotFound))
		return
	}
	response.RespondOK(c, gin.H{"assignment": out.Value})
}

// GET /api/assignments/stats
func (h *AssignmentHandler) Stats(c *gin.Context) {
	out := h.queue.Stats(c.Request.Context())
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"counts": out.Value})
}
