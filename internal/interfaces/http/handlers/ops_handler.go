package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/monitoring"
)

// OpsHandler serves the operational endpoints: breaker states, recent
// query traces and session resets.
type OpsHandler struct {
	memory   *service.SessionMemory
	breakers *service.BreakerRegistry
	traces   *monitoring.TraceLog
	logger   *zap.Logger
}

func NewOpsHandler(memory *service.SessionMemory, breakers *service.BreakerRegistry, traces *monitoring.TraceLog, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{
		memory:   memory,
		breakers: breakers,
		traces:   traces,
		logger:   logger,
	}
}

type breakerView struct {
	Open        bool   `json:"open"`
	Failures    int    `json:"failures"`
	LastFailure string `json:"last_failure,omitempty"`
}

// Breakers reports every circuit the pipeline has touched.
func (h *OpsHandler) Breakers(c *gin.Context) {
	states := h.breakers.States()
	out := make(map[string]breakerView, len(states))
	for name, st := range states {
		view := breakerView{Open: st.Open, Failures: st.Failures}
		if !st.LastFailure.IsZero() {
			view.LastFailure = st.LastFailure.UTC().Format(time.RFC3339)
		}
		out[name] = view
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out, "open": h.breakers.OpenServices()})
}

// ClearSession wipes one session's conversation window.
func (h *OpsHandler) ClearSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	if err := h.memory.Clear(c.Request.Context(), sessionID); err != nil {
		h.logger.Warn("Session clear failed", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cleared": true})
}

// Traces returns recent completed query traces, newest last, plus the
// queries still in flight.
func (h *OpsHandler) Traces(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}
	c.JSON(http.StatusOK, gin.H{
		"completed": h.traces.Recent(n),
		"in_flight": h.traces.InFlight(),
	})
}
