package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/sifan077/PowerShare/internal/app/catalog"
	"github.com/sifan077/PowerShare/internal/app/content"
	"github.com/sifan077/PowerShare/internal/app/identity"
	"github.com/sifan077/PowerShare/internal/app/repository"
	inthttp "github.com/sifan077/PowerShare/internal/http/handler"
	"github.com/sifan077/PowerShare/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server routes to.
type Dependencies struct {
	Logger     *zap.Logger
	Controller interface {
		inthttp.ShareController
		middleware.VisitProcessor
	}
	Stats    inthttp.StatsReader
	Settings inthttp.SettingsManager
	Items    repository.ItemRepository
	Content  content.Repository
	Catalog  *catalog.Catalog
	Identity identity.Provider

	// RateLimitStore backs the coarse /api limiter; nil disables it.
	RateLimitStore cache.Store
	APIRateLimit   int
	AllowOrigin    string
	SiteName       string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with middleware and routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Content == nil {
		deps.Content = deps.Items
	}

	app := fiber.New(fiber.Config{
		AppName:               "PowerShare",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS(s.deps.AllowOrigin))
	s.app.Use(middleware.Identity(s.deps.Identity))

	if s.deps.RateLimitStore != nil && s.deps.APIRateLimit > 0 {
		cfg := middleware.DefaultRateLimitConfig()
		cfg.MaxRequests = s.deps.APIRateLimit
		cfg.KeyPrefix = "api_rl"
		s.app.Use("/api", middleware.RateLimit(s.deps.RateLimitStore, cfg, s.deps.Logger))
	}

	if s.deps.Controller != nil {
		s.app.Use(middleware.Tracking(s.deps.Controller, s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	shareHandler := inthttp.NewShareHandler(inthttp.ShareDeps{
		Logger:     s.deps.Logger,
		Controller: s.deps.Controller,
		Items:      s.deps.Content,
		SiteName:   s.deps.SiteName,
	})
	shareHandler.Register(s.app)

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:   s.deps.Logger,
		Stats:    s.deps.Stats,
		Settings: s.deps.Settings,
		Items:    s.deps.Items,
		Catalog:  s.deps.Catalog,
	})
	apiHandler.Register(s.app)
}
