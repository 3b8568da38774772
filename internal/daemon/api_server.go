package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reelcast/internal/config"
	"reelcast/internal/logging"
)

const maxWebhookBodyBytes int64 = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	c      *Components
	router *gin.Engine

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, c *Components) *apiServer {
	gin.SetMode(gin.ReleaseMode)
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Server.Bind),
		logger: logging.NewComponentLogger(c.Logger, "api-server"),
		c:      c,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestIDMiddleware(), srv.accessLog())
	if c.Metrics != nil {
		router.Use(c.Metrics.Middleware())
		router.GET("/metrics", c.Metrics.Handler())
	}
	router.GET("/healthz", srv.handleHealth)
	router.POST("/api/webhooks/:provider", srv.handleWebhook)

	protected := router.Group("/api", authMiddleware(cfg.Server.CronSecret, cfg.Server.TrustedSchedulerHeader, cfg.Server.TrustedSchedulerValue))
	protected.GET("/reconcile", srv.handleReconcile)
	protected.POST("/reconcile", srv.handleReconcile)
	protected.GET("/reconcile/:stage", srv.handleReconcile)
	protected.POST("/reconcile/:stage", srv.handleReconcile)

	protected.GET("/workflows", srv.handleListWorkflows)
	protected.POST("/workflows", srv.handleCreateWorkflow)
	protected.GET("/workflows/:kind/:id", srv.handleGetWorkflow)

	protected.GET("/alerts", srv.handleListAlerts)
	protected.GET("/alerts/stats", srv.handleAlertStats)
	protected.POST("/alerts/:id/resolve", srv.handleResolveAlert)

	protected.GET("/deadletters", srv.handleDeadLetters)
	protected.GET("/feeds", srv.handleFeeds)

	srv.router = router
	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// reconcile triggers run a full pass before answering
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("server.bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop(ctx context.Context) {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
	s.listener = nil
}

func (s *apiServer) address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger := logging.WithContext(c.Request.Context(), s.logger)
		attrs := []logging.Attr{
			logging.Int("status", c.Writer.Status()),
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", logging.Args(attrs...)...)
			return
		}
		logger.Debug("http request", logging.Args(attrs...)...)
	}
}

func (s *apiServer) writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
