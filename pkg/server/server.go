// Package server assembles the edge service: infrastructure, routes and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/postcraft/edge/internal/api"
	"github.com/postcraft/edge/internal/config"
	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services"
	"github.com/postcraft/edge/internal/services/aicache"
	"github.com/postcraft/edge/internal/services/autopost"
	"github.com/postcraft/edge/internal/services/billing"
	"github.com/postcraft/edge/internal/services/circuitbreaker"
	"github.com/postcraft/edge/internal/services/database"
	"github.com/postcraft/edge/internal/services/kv"
	"github.com/postcraft/edge/internal/services/llm"
	"github.com/postcraft/edge/internal/services/metrics"
	"github.com/postcraft/edge/internal/services/middleware"
	"github.com/postcraft/edge/internal/services/posts"
	"github.com/postcraft/edge/internal/services/ratelimit"
	"github.com/postcraft/edge/internal/services/social"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Server is one edge service instance
type Server struct {
	config  *config.Config
	app     *fiber.App
	redis   *redis.Client
	db      *database.DB
	store   kv.Store
	metrics *metrics.Recorder
}

// New creates a server for cfg. cfg must not be nil.
func New(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}
	return &Server{config: cfg, metrics: metrics.NewRecorder()}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the listener fails
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogLevel(s.config)

	if err := s.initInfrastructure(ctx); err != nil {
		return err
	}
	defer s.Close()

	s.app = createFiberApp(s.config)
	setupMiddleware(s.app, s.config)

	routes, err := s.buildRoutes(ctx)
	if err != nil {
		return err
	}
	if err := routes.Register(s.app); err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	listenAddr := ":" + s.config.Server.Port
	fmt.Printf("postcraft edge starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   KV backend: %s\n", s.config.KV.Backend)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		fiberlog.Info("Shutdown requested, draining connections...")
	}

	timeout := time.Duration(s.config.Server.ShutdownTimeoutSec) * time.Second
	if err := s.app.ShutdownWithTimeout(timeout); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")
	return nil
}

// RunAutoPost performs one publish sweep without starting the HTTP server
func (s *Server) RunAutoPost(ctx context.Context) (*autopost.Result, error) {
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogLevel(s.config)

	if s.config.Database == nil {
		return nil, errors.New("auto-post requires a database section")
	}
	db, err := database.New(ctx, *s.config.Database)
	if err != nil {
		return nil, err
	}
	s.db = db
	defer s.Close()

	return s.newAutoPostService().Run(ctx)
}

// Close releases infrastructure connections
func (s *Server) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
		s.redis = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
		s.db = nil
	}
}

func (s *Server) initInfrastructure(ctx context.Context) error {
	store, redisClient, err := newStore(ctx, s.config.KV)
	if err != nil {
		return err
	}
	s.store = store
	s.redis = redisClient

	if s.config.Database != nil {
		db, err := database.New(ctx, *s.config.Database)
		if err != nil {
			s.Close()
			return fmt.Errorf("database initialization failed: %w", err)
		}
		s.db = db
	} else {
		fiberlog.Info("Database not configured - auto-post and billing endpoints disabled")
	}
	return nil
}

func (s *Server) buildRoutes(ctx context.Context) (*api.Routes, error) {
	cfg := s.config

	routes := &api.Routes{
		Edge:           cfg.Edge,
		Store:          s.store,
		Limiter:        ratelimit.NewTokenBucket(s.store),
		Metrics:        s.metrics,
		Auth:           middleware.NewAuthMiddleware(middleware.AuthConfigFromModel(cfg.Auth)),
		CronSecret:     cfg.Social.CronSecret,
		MetricsHandler: s.metrics.Handler(),
	}

	health := map[string]api.Pinger{}
	if p, ok := s.store.(api.Pinger); ok {
		health["kv"] = p
	}
	if s.db != nil {
		health["database"] = s.db
	}
	routes.Health = api.NewHealthHandler(health)

	if cfg.LLM != nil {
		generator, err := llm.New(ctx, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm initialization failed: %w", err)
		}
		if cfg.LLM.CircuitBreaker != nil {
			breaker := circuitbreaker.New(s.store, generator.Provider(), circuitbreaker.ConfigFromModel(cfg.LLM.CircuitBreaker))
			generator = llm.WithBreaker(generator, breaker)
		}
		cache := aicache.New(s.store, aicache.OptionsFromConfig(cfg.Edge.AI))
		cache.SetObserver(s.metrics)
		routes.Caption = api.NewCaptionHandler(cfg.LLM, generator, cache, cfg.Edge.MaxJSONBytes)
		routes.LLMTimeout = time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond
	} else {
		fiberlog.Info("LLM not configured - caption endpoint disabled")
	}

	if s.db != nil {
		routes.AutoPost = api.NewAutoPostHandler(s.newAutoPostService())
		if cfg.Billing != nil {
			routes.Billing = api.NewBillingHandler(billing.NewService(s.db.DB, cfg.Billing))
		}
	}

	return routes, nil
}

func (s *Server) newAutoPostService() *autopost.Service {
	socialCfg := social.ConfigFromModel(s.config.Social)
	client := services.NewClient("")
	publishers := social.NewRegistry(socialCfg, client)

	svc := autopost.NewService(posts.NewRepository(s.db.DB), publishers, autopost.Options{
		Concurrency: s.config.Social.Concurrency,
		PostTimeout: 2 * socialCfg.UploadTimeout,
	})
	svc.SetObserver(s.metrics)
	return svc
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "postcraft-edge",
		EnablePrintRoutes: !isProd,
		BodyLimit:         cfg.Server.BodyLimitBytes,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		CaseSensitive:     true,
		StrictRouting:     false,
		Network:           "tcp",
		ServerHeader:      "postcraft-edge",
		ErrorHandler:      errorHandler,
	})
}

// errorHandler renders errors that escape the edge wrapper, such as unknown routes
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Error"

	var fiberErr *fiber.Error
	var appErr *models.AppError
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	case errors.As(err, &appErr):
		sanitized := models.SanitizeError(appErr)
		code = sanitized.GetStatusCode()
		message = sanitized.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info", "":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}
