package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/execution"
	"statArbExecutor/internal/ingest"
	"statArbExecutor/internal/ports"
)

const defaultRecordLimit = 50

// Config holds configuration for the monitor HTTP server.
type Config struct {
	Addr        string
	Logger      ports.Logger
	Coordinator *execution.Coordinator
	Ingestor    *ingest.Ingestor
	Journal     ports.ExecutionJournal // optional; enables /fills and /orders
}

// Server exposes the execution core's query surface over HTTP. All state
// lives in the coordinator and journal; the server only reads and relays.
type Server struct {
	cfg    Config
	engine *gin.Engine
	srv    *http.Server
}

type statusView struct {
	State               execution.State `json:"state"`
	Running             bool            `json:"running"`
	GatewayConnected    bool            `json:"gateway_connected"`
	PendingOrders       int             `json:"pending_orders"`
	TradingAllowed      bool            `json:"trading_allowed"`
	HaltReason          string          `json:"halt_reason,omitempty"`
	LastHeartbeat       *time.Time      `json:"last_heartbeat,omitempty"`
	HeartbeatAgeSeconds *float64        `json:"heartbeat_age_seconds,omitempty"`
	Intake              ingest.Stats    `json:"intake"`
	Pipeline            execution.Stats `json:"pipeline"`
}

type pnlView struct {
	Summary domain.PnlSummary    `json:"summary"`
	History []domain.PnlSnapshot `json:"history"`
}

// New assembles the router. Addr defaults to ":8080".
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil || cfg.Coordinator == nil || cfg.Ingestor == nil {
		return nil, fmt.Errorf("%w: logger, coordinator and ingestor are required for monitor server", ports.ErrConfigurationError)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{cfg: cfg, engine: engine}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/positions", s.handlePositions)
	s.engine.GET("/pnl", s.handlePnl)
	s.engine.GET("/risk", s.handleRisk)
	s.engine.POST("/risk/limits", s.handleUpdateLimits)
	s.engine.POST("/reset/daily", s.handleResetDaily)
	s.engine.GET("/fills", s.handleFills)
	s.engine.GET("/orders", s.handleOrders)
	s.engine.NoRoute(func(c *gin.Context) { notFound(c, "route not found") })
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving in the background; listen failures are logged.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error(ctx, err, "Monitor server failed")
		}
	}()
	s.cfg.Logger.Info(ctx, "Monitor server listening", map[string]interface{}{
		"addr": s.cfg.Addr,
	})
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	success(c, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	riskStatus := s.cfg.Coordinator.RiskStatus()
	view := statusView{
		State:            s.cfg.Coordinator.State(),
		Running:          s.cfg.Coordinator.IsRunning(),
		GatewayConnected: s.cfg.Coordinator.Connected(),
		PendingOrders:    s.cfg.Coordinator.PendingCount(),
		TradingAllowed:   riskStatus.TradingAllowed,
		HaltReason:       riskStatus.HaltReason,
		Intake:           s.cfg.Ingestor.Stats(),
		Pipeline:         s.cfg.Coordinator.Stats(),
	}
	if last, ok := s.cfg.Ingestor.LastHeartbeat(); ok {
		age := time.Since(last).Seconds()
		view.LastHeartbeat = &last
		view.HeartbeatAgeSeconds = &age
	}
	success(c, view)
}

func (s *Server) handlePositions(c *gin.Context) {
	success(c, s.cfg.Coordinator.Positions())
}

func (s *Server) handlePnl(c *gin.Context) {
	limit, ok := parseLimitQuery(c, 0)
	if !ok {
		badRequest(c, "limit must be a non-negative integer")
		return
	}
	history := s.cfg.Coordinator.PnlHistory()
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	success(c, pnlView{
		Summary: s.cfg.Coordinator.PnlSummary(),
		History: history,
	})
}

func (s *Server) handleRisk(c *gin.Context) {
	success(c, s.cfg.Coordinator.RiskStatus())
}

// handleUpdateLimits binds the posted fields over the currently active
// limits, so a partial payload updates only the thresholds it names.
func (s *Server) handleUpdateLimits(c *gin.Context) {
	limits := s.cfg.Coordinator.RiskStatus().Limits
	if err := c.ShouldBindJSON(&limits); err != nil {
		badRequest(c, "invalid risk limits payload: "+err.Error())
		return
	}
	if err := limits.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	s.cfg.Coordinator.UpdateRiskLimits(c.Request.Context(), limits)
	success(c, limits)
}

func (s *Server) handleResetDaily(c *gin.Context) {
	s.cfg.Coordinator.ResetDaily(c.Request.Context())
	success(c, gin.H{"reset": "daily"})
}

func (s *Server) handleFills(c *gin.Context) {
	if s.cfg.Journal == nil {
		notFound(c, "execution journal not configured")
		return
	}
	limit, ok := parseLimitQuery(c, defaultRecordLimit)
	if !ok {
		badRequest(c, "limit must be a non-negative integer")
		return
	}
	fills, err := s.cfg.Journal.RecentFills(c.Request.Context(), limit)
	if err != nil {
		s.cfg.Logger.Error(c.Request.Context(), err, "Failed to query fills")
		internalError(c, "failed to query fills")
		return
	}
	success(c, fills)
}

func (s *Server) handleOrders(c *gin.Context) {
	if s.cfg.Journal == nil {
		notFound(c, "execution journal not configured")
		return
	}
	limit, ok := parseLimitQuery(c, defaultRecordLimit)
	if !ok {
		badRequest(c, "limit must be a non-negative integer")
		return
	}
	orders, err := s.cfg.Journal.OrderHistory(c.Request.Context(), limit)
	if err != nil {
		s.cfg.Logger.Error(c.Request.Context(), err, "Failed to query order history")
		internalError(c, "failed to query order history")
		return
	}
	success(c, orders)
}

// parseLimitQuery reads the "limit" query parameter, returning def when it is
// absent. Reports failure for unparsable or negative values.
func parseLimitQuery(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
