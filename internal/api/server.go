package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ln9swrd/coinpulse-sub000/config"
	"github.com/ln9swrd/coinpulse-sub000/internal/database"
	"github.com/ln9swrd/coinpulse-sub000/internal/detector"
	"github.com/ln9swrd/coinpulse-sub000/internal/scheduler"
	"github.com/ln9swrd/coinpulse-sub000/internal/selector"
)

// StatusSource exposes the heartbeat of the running loops
type StatusSource interface {
	Stats() scheduler.Stats
}

// Server is the read-only status API. It never places orders and never
// mutates signals; all writes stay with the loops.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *database.Repository
	selector   *selector.Selector
	detector   *detector.Detector
	loops      []StatusSource
	logger     zerolog.Logger
}

func NewServer(
	cfg config.ServerConfig,
	repo *database.Repository,
	sel *selector.Selector,
	det *detector.Detector,
	loops []StatusSource,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:   router,
		repo:     repo,
		selector: sel,
		detector: det,
		loops:    loops,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/signals", s.handleSignals)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.repo.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	loops := make([]scheduler.Stats, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l.Stats())
	}

	c.JSON(http.StatusOK, gin.H{
		"loops":              loops,
		"last_cycle":         s.detector.LastCycle(),
		"watchlist":          s.selector.Entries(),
		"watchlist_refresh":  s.selector.LastRefresh(),
		"signals_by_status":  counts,
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	status := c.Query("status")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	signals, err := s.repo.RecentSignals(ctx, status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

// Start serves in a background goroutine
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("status API stopped")
		}
	}()
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
