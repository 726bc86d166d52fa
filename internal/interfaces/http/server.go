package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/monitoring"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/interfaces/http/handlers"
)

// Server is the JSON API frontend: chat, health, operational views and
// the websocket upgrade endpoint.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config carries the listener settings.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// NewServer builds the router and binds every handler. The traces,
// metrics and ws arguments may be nil; their routes are simply omitted.
func NewServer(cfg Config, pipeline handlers.Pipeline, memory *service.SessionMemory, breakers *service.BreakerRegistry, traces *monitoring.TraceLog, metrics *monitoring.Metrics, ws gin.HandlerFunc, logger *zap.Logger) *Server {
	if cfg.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	chatHandler := handlers.NewChatHandler(pipeline, logger)
	opsHandler := handlers.NewOpsHandler(memory, breakers, traces, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/chat", chatHandler.Chat)
		v1.DELETE("/sessions/:id", opsHandler.ClearSession)
		v1.GET("/breakers", opsHandler.Breakers)
		if ws != nil {
			v1.GET("/ws", ws)
		}
	}

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if traces != nil {
		router.GET("/debug/traces", opsHandler.Traces)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: logger,
	}
}

// Start begins serving on a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
