package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/api/handlers"
	apimw "github.com/cinesearch/cinesearch/internal/api/middleware"
	"github.com/cinesearch/cinesearch/internal/config"
	"github.com/cinesearch/cinesearch/internal/health"
	"github.com/cinesearch/cinesearch/internal/scheduler"
	"github.com/cinesearch/cinesearch/internal/stats"
)

const healthTimeout = 2 * time.Second

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MovieCounter reports the catalog size.
type MovieCounter interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the services the HTTP API exposes. Webhook, Scheduler, Health and
// Recent may be nil.
type Deps struct {
	DB        Pinger
	Catalog   MovieCounter
	Search    handlers.Searcher
	Stats     *stats.Stats
	Registry  *prometheus.Registry
	Webhook   http.Handler
	Scheduler *scheduler.Scheduler
	Health    *health.Service
	Recent    LogsProvider
}

// Server handles HTTP requests: health, metrics, the Telegram webhook and a
// JSON search endpoint.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	deps   Deps
	logger zerolog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Warn().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
				return nil
			}
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
}

// Start listens on address and blocks until the server stops.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.deps.DB.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Health check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"database": "unreachable",
		})
	}

	movies, err := s.deps.Catalog.Count(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Health check could not count movies")
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"database": "error",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": config.Version,
		"movies":  movies,
		"uptime":  s.deps.Stats.Snapshot().Uptime.Round(time.Second).String(),
	})
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Stats.Snapshot())
}

func (s *Server) getComponentHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Health.GetSummary())
}
