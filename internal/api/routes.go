package api

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cinesearch/cinesearch/internal/api/handlers"
	"github.com/cinesearch/cinesearch/internal/ratelimit"
)

const (
	searchRequestsPerSecond = 5
	searchBurst             = 10
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))

	if s.deps.Webhook != nil {
		s.echo.POST("/webhook", echo.WrapHandler(s.deps.Webhook))
	}

	api := s.echo.Group("/api")

	searchHandler := handlers.NewSearchHandler(s.deps.Search)
	limiter := ratelimit.New[string](searchRequestsPerSecond, searchBurst)
	api.GET("/search", searchHandler.Search, ratelimit.IPMiddleware(limiter))

	if s.cfg.AdminToken != "" {
		s.setupAdminRoutes(api.Group("/admin", s.adminAuthMiddleware()))
	}
}

func (s *Server) setupAdminRoutes(admin *echo.Group) {
	admin.GET("/stats", s.getStats)

	if s.deps.Health != nil {
		admin.GET("/health", s.getComponentHealth)
	}

	if s.deps.Recent != nil {
		NewLogsHandlers(s.deps.Recent).RegisterRoutes(admin.Group("/logs"))
	}

	if s.deps.Scheduler != nil {
		schedulerHandler := handlers.NewSchedulerHandler(s.deps.Scheduler)
		admin.GET("/tasks", schedulerHandler.ListTasks)
		admin.GET("/tasks/:id", schedulerHandler.GetTask)
		admin.POST("/tasks/:id/run", schedulerHandler.RunTask)
	}
}

// adminAuthMiddleware accepts "Authorization: Bearer <admin token>".
func (s *Server) adminAuthMiddleware() echo.MiddlewareFunc {
	token := []byte(s.cfg.AdminToken)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:Authorization",
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
	})
}
