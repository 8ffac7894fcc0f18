package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alertscope/internal/config"
)

// Server is the HTTP server with its routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	searchHandler       *SearchHandler
	sessionHandler      *SessionHandler
	filterGroupHandler  *FilterGroupHandler
	notificationHandler *NotificationHandler
	ingestHandler       *IngestHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config              *config.ServerConfig
	Logger              *slog.Logger
	SearchHandler       *SearchHandler
	SessionHandler      *SessionHandler
	FilterGroupHandler  *FilterGroupHandler
	NotificationHandler *NotificationHandler
	IngestHandler       *IngestHandler
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           deps.Config.ReadTimeout,
		WriteTimeout:          deps.Config.WriteTimeout,
		IdleTimeout:           deps.Config.IdleTimeout,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:                 app,
		config:              deps.Config,
		logger:              deps.Logger,
		searchHandler:       deps.SearchHandler,
		sessionHandler:      deps.SessionHandler,
		filterGroupHandler:  deps.FilterGroupHandler,
		notificationHandler: deps.NotificationHandler,
		ingestHandler:       deps.IngestHandler,
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

func (s *Server) registerMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	s.app.Use(requestid.New())
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.healthCheck)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := s.app.Group("/v1")

	// One-shot search and data view resolution
	v1.Post("/alerts/_search", s.searchHandler.Search)
	v1.Get("/data-view", s.searchHandler.DataView)
	v1.Get("/data-views/:id", s.searchHandler.GetDataView)

	// Explorer sessions
	v1.Post("/sessions", s.sessionHandler.Create)
	v1.Get("/sessions", s.sessionHandler.List)
	v1.Get("/sessions/:id", s.sessionHandler.Get)
	v1.Delete("/sessions/:id", s.sessionHandler.Delete)
	v1.Patch("/sessions/:id/search-bar", s.sessionHandler.UpdateSearchBar)
	v1.Put("/sessions/:id/page", s.sessionHandler.SetPage)
	v1.Put("/sessions/:id/feature-ids", s.sessionHandler.SetFeatureIDs)
	v1.Get("/sessions/:id/alerts", s.sessionHandler.Alerts)
	v1.Post("/sessions/:id/alerts/_refetch", s.sessionHandler.Refetch)
	v1.Get("/sessions/:id/data-view", s.sessionHandler.DataView)

	// Filter group of a session
	fg := v1.Group("/sessions/:id/filter-group")
	fg.Get("", s.filterGroupHandler.Get)
	fg.Post("/controls", s.filterGroupHandler.AddControl)
	fg.Delete("/controls", s.filterGroupHandler.RemoveControl)
	fg.Put("/selection", s.filterGroupHandler.UpdateSelection)
	fg.Put("/banner", s.filterGroupHandler.SetBanner)
	fg.Post("/:command", s.filterGroupHandler.Command)

	v1.Get("/notifications", s.notificationHandler.List)

	// Filter changes from other tabs, applied through the queue
	if s.ingestHandler != nil {
		v1.Post("/filter-changes", s.ingestHandler.IngestFilterChange)
	}
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return Success(c, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	var e *fiber.Error
	if errors.As(err, &e) {
		code := ErrCodeInternalError
		switch e.Code {
		case fiber.StatusNotFound:
			code = ErrCodeNotFound
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
			code = ErrCodeBadRequest
		}
		return Error(c, e.Code, code, e.Message)
	}

	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
