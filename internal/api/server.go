// Package api exposes the evaluation pipeline over REST and WebSocket. The
// server wraps an orchestrator plus optional history, archive, bus, and
// notification dependencies; the pipeline packages never import this one.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/bus"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/metrics"
	"github.com/ajitpratap0/agentalign/internal/notify"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/record"
	"github.com/ajitpratap0/agentalign/internal/store"
)

// Config contains server configuration and the dependencies the handlers
// serve from. Orchestrator is required for the evaluation endpoint; all
// other dependencies are optional and the endpoints they back degrade
// gracefully when absent.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string

	Orchestrator *orchestrator.Orchestrator
	History      *history.Store
	Archive      *store.Store
	Dispatcher   *notify.Dispatcher
	Bus          *bus.Bus
	Hub          *Hub
	Sink         events.Sink

	RateLimit RateLimitConfig
}

// Server represents the REST API server.
type Server struct {
	router *gin.Engine
	server *http.Server
	addr   string
	log    zerolog.Logger

	orch     *orchestrator.Orchestrator
	history  *history.Store
	archive  *store.Store
	bus      *bus.Bus
	hub      *Hub
	recorder *record.Recorder

	origins  []string
	limiters *rateLimiters
}

// NewServer creates a new API server.
func NewServer(config Config, logger zerolog.Logger) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router:  router,
		addr:    addr,
		log:     logger,
		orch:    config.Orchestrator,
		history: config.History,
		archive: config.Archive,
		bus:     config.Bus,
		hub:     config.Hub,
		recorder: &record.Recorder{
			History:    config.History,
			Archive:    config.Archive,
			Bus:        config.Bus,
			Dispatcher: config.Dispatcher,
			Sink:       config.Sink,
			Log:        logger,
		},
		origins:  origins,
		limiters: newRateLimiters(config.RateLimit),
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin.
func LoggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := logger.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

// MetricsMiddleware records request counts and latencies per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		metrics.RecordAPIRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			float64(time.Since(start).Milliseconds()),
		)
	}
}
