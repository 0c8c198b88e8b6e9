package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/http/response"
	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
	"github.com/yungbote/avatarworld/internal/threadstate"
)

type ThreadStateHandler struct {
	agg *threadstate.Aggregator
}

func NewThreadStateHandler(agg *threadstate.Aggregator) *ThreadStateHandler {
	return &ThreadStateHandler{agg: agg}
}

// GET /api/thread-states?lookback_ms=&limit=
func (h *ThreadStateHandler) List(c *gin.Context) {
	lookback := time.Duration(queryInt(c, "lookback_ms", 0)) * time.Millisecond
	limit := queryInt(c, "limit", 0)
	out := h.agg.GetActiveThreadStates(c.Request.Context(), lookback, limit)
	if out.Degraded() {
		response.RespondErr(c, out.Err)
		return
	}
	response.RespondOK(c, gin.H{"states": out.Value})
}

type activityRequest struct {
	MessageID      string    `json:"message_id"`
	GuildID        string    `json:"guild_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Timestamp      time.Time `json:"timestamp"`
}

// POST /api/channels/:id/activity
func (h *ThreadStateHandler) RecordActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	if strings.TrimSpace(req.AuthorID) == "" || strings.TrimSpace(req.MessageID) == "" {
		response.RespondErr(c, fmt.Errorf("%w: message_id and author_id required", apperr.ErrInvalidArgument))
		return
	}
	msg := &types.ChannelMessage{
		MessageID:      req.MessageID,
		ChannelID:      c.Param("id"),
		GuildID:        req.GuildID,
		AuthorID:       req.AuthorID,
		AuthorUsername: req.AuthorUsername,
		Timestamp:      req.Timestamp,
	}
	if err := h.agg.RecordMessage(c.Request.Context(), msg); err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	response.RespondCreated(c, gin.H{"message": msg})
}

// POST /api/channels/:id/thread-state/refresh
func (h *ThreadStateHandler) Recompute(c *gin.Context) {
	st, err := h.agg.ComputeAndUpsertState(c.Request.Context(), c.Param("id"), c.Query("guild_id"))
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"state": st})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
