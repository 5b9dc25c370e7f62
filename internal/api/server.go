// Package api exposes the analysis engine over HTTP and websocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"forex-smc-engine/internal/analyzer"
	"forex-smc-engine/internal/calibrator"
	"forex-smc-engine/internal/database"
	"forex-smc-engine/internal/sequence"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ProductionMode  bool
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	analyzer   *analyzer.Analyzer
	tracker    *sequence.Tracker
	calibrator *calibrator.Calibrator
	repo       *database.Repository
	seqRepo    *database.SequenceRepository
	seqCache   *database.RedisSequenceCache
	hub        *WSHub
	logger     zerolog.Logger
}

// NewServer creates the API server and registers routes.
func NewServer(
	cfg ServerConfig,
	smc *analyzer.Analyzer,
	tracker *sequence.Tracker,
	cal *calibrator.Calibrator,
	repo *database.Repository,
	seqRepo *database.SequenceRepository,
	seqCache *database.RedisSequenceCache,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		config:     cfg,
		analyzer:   smc,
		tracker:    tracker,
		calibrator: cal,
		repo:       repo,
		seqRepo:    seqRepo,
		seqCache:   seqCache,
		hub:        NewWSHub(),
		logger:     logger.With().Str("component", "api").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.router.Use(s.corsMiddleware())
	s.registerRoutes()

	return s
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if s.config.AllowedOrigins == "" || s.config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(s.config.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	return cors.New(corsConfig)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/scan", s.handleScan)
		v1.GET("/scans/:instrument", s.handleScanHistory)
		v1.GET("/scan/:scan_id", s.handleScanByID)

		v1.GET("/sequence/:instrument", s.handleSequenceState)
		v1.GET("/sequence/:instrument/transitions", s.handleSequenceTransitions)

		v1.GET("/calibration/stats", s.handleCalibrationStats)
		v1.POST("/calibration/fit", s.handleCalibrationFit)

		v1.POST("/trades", s.handleCreateTrade)
		v1.POST("/trades/:id/close", s.handleCloseTrade)
		v1.GET("/trades", s.handleTradeHistory)
	}
}

// Start runs the websocket hub and the HTTP server. Blocks until the
// server stops.
func (s *Server) Start() error {
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Hub exposes the websocket hub for event publication.
func (s *Server) Hub() *WSHub {
	return s.hub
}
