package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// Pipeline answers one query. The orchestrator satisfies this.
type Pipeline interface {
	Handle(ctx context.Context, query *entity.Query, source string) *entity.Response
}

// ChatHandler exposes the response pipeline over plain JSON.
type ChatHandler struct {
	pipeline Pipeline
	logger   *zap.Logger
}

func NewChatHandler(pipeline Pipeline, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

type ChatRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	SessionID string `json:"session_id"`
	Text      string `json:"text" binding:"required"`
	Voice     bool   `json:"voice"`
}

type ChatResponse struct {
	RequestID string   `json:"request_id"`
	Content   string   `json:"content"`
	PrefixTag string   `json:"prefix_tag,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Method    string   `json:"method"`
	Error     string   `json:"error,omitempty"`
	TimedOut  bool     `json:"timed_out,omitempty"`
}

// Chat runs one query through the pipeline. A rate-limited query gets
// 429 and a Retry-After hint; everything else answers 200, degraded
// responses included.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query, err := entity.NewQuery(req.UserID, req.SessionID, req.Text, req.Voice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := h.pipeline.Handle(c.Request.Context(), query, "http")
	if resp == nil {
		c.Header("Retry-After", "2")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		RequestID: query.RequestID(),
		Content:   resp.Content,
		PrefixTag: resp.PrefixTag,
		Sources:   resp.Sources,
		Method:    string(resp.Method),
		Error:     resp.Error,
		TimedOut:  resp.TimedOut,
	})
}
