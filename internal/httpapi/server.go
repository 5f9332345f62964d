package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ccjk/ctxrd/internal/orchestrator"
	"github.com/ccjk/ctxrd/internal/sessionstore"
	"github.com/ccjk/ctxrd/internal/syncqueue"
)

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Server exposes the daemon's HTTP surface: /healthz, /status, /sessions,
// /sync, and /metrics, for the operator CLI and Prometheus scraping.
type Server struct {
	echo    *echo.Echo
	orch    *orchestrator.Orchestrator
	store   sessionstore.Store
	queue   *syncqueue.Queue
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// NewServer wires a Server over an Orchestrator, Session Store, and Sync
// Queue.
func NewServer(orch *orchestrator.Orchestrator, store sessionstore.Store, queue *syncqueue.Queue, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("httpapi: orchestrator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("httpapi: session store is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("httpapi: sync queue is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpMetrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		orch:    orch,
		store:   store,
		queue:   queue,
		logger:  logger,
		config:  cfg,
		metrics: httpMetrics,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/sessions", s.handleSessions)
	s.echo.GET("/sync", s.handleSync)
	s.echo.GET("/stats", s.handleStats)
	s.echo.POST("/cleanup", s.handleCleanup)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{Status: "ok"}
	if st, ok := s.orch.Status(); ok {
		resp.Session = &SessionStatus{
			SessionID:        st.SessionID,
			ProjectHash:      st.ProjectHash,
			LifecycleStatus:  string(st.LifecycleStatus),
			TokenCount:       st.TokenCount,
			MaxContextTokens: st.MaxContextTokens,
			UsagePercent:     st.UsagePercent,
			FCCount:          st.FCCount,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSessions(c echo.Context) error {
	ctx := c.Request().Context()
	filter := sessionstore.ListFilter{
		ProjectHash: c.QueryParam("projectHash"),
	}
	metas, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		s.logger.Error("listing sessions failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}

	summaries := make([]SessionSummary, 0, len(metas))
	for _, m := range metas {
		summaries = append(summaries, SessionSummary{
			ID:          m.ID,
			ProjectHash: m.ProjectHash,
			ProjectPath: m.ProjectPath,
			Status:      string(m.Status),
			TokenCount:  m.TokenCount,
			FCCount:     m.FCCount,
			StartTime:   m.StartTime,
			EndTime:     m.EndTime,
		})
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: summaries})
}

func (s *Server) handleSync(c echo.Context) error {
	stats, err := s.queue.GetStats()
	if err != nil {
		s.logger.Error("sync stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read sync queue stats")
	}

	resp := SyncResponse{
		Stats: SyncStats{
			Total:   stats.Total,
			Pending: stats.Pending,
			Syncing: stats.Syncing,
			Synced:  stats.Synced,
			Failed:  stats.Failed,
		},
	}

	if c.QueryParam("items") == "true" {
		items, err := s.queue.ListItems(syncqueue.Filter{})
		if err != nil {
			s.logger.Error("listing sync items failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sync items")
		}
		resp.Items = make([]SyncItem, 0, len(items))
		for _, it := range items {
			resp.Items = append(resp.Items, SyncItem{
				ID:        it.ID,
				Type:      string(it.Type),
				SessionID: it.SessionID,
				Status:    string(it.Status),
				Retries:   it.Retries,
				LastError: it.LastError,
				NextRetry: it.NextRetry,
			})
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.GetStorageStats(c.Request().Context())
	if err != nil {
		s.logger.Error("storage stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read storage stats")
	}
	return c.JSON(http.StatusOK, StatsResponse{
		SessionCount: stats.SessionCount,
		TotalBytes:   stats.TotalBytes,
		ProjectCount: stats.ProjectCount,
	})
}

func (s *Server) handleCleanup(c echo.Context) error {
	var req CleanupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MaxAgeDays <= 0 {
		req.MaxAgeDays = 30
	}

	result, err := s.store.CleanOldSessions(c.Request().Context(), time.Duration(req.MaxAgeDays)*24*time.Hour)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clean old sessions")
	}
	return c.JSON(http.StatusOK, CleanupResponse{
		Removed:    result.Removed,
		BytesFreed: result.BytesFreed,
		IDs:        result.IDs,
	})
}

// Start starts the HTTP server, blocking until it stops or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
