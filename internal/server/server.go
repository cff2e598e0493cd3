// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB ─┬→ CategoryService ─→ CategoryHandler
//	                           ├→ ItemService ─────→ ItemHandler
//	                           └→ AuthService ─────→ AuthHandler
//	              → RedisDenylist (optional) ─→ AuthService, RequireAuth
//
// Each layer receives only what it needs: services get repository
// interfaces, handlers get services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/home-manager/internal/auth"
	"github.com/sakif/home-manager/internal/config"
	"github.com/sakif/home-manager/internal/handler"
	"github.com/sakif/home-manager/internal/metrics"
	"github.com/sakif/home-manager/internal/middleware"
	sqliteRepo "github.com/sakif/home-manager/internal/repository/sqlite"
	"github.com/sakif/home-manager/internal/service"
	"github.com/sakif/home-manager/internal/session"
)

// Server represents the HTTP server and the resources it owns. The
// database and the Redis connection are closed on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	db      *sqliteRepo.DB
	redis   *session.RedisDenylist
}

// New opens the database (and Redis, when REDIS_URL is set) and wires every
// route.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath, sqliteRepo.WithDefaultCategories(cfg.DefaultCategories))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(prometheus.NewRegistry()),
		db:      db,
	}

	if cfg.RedisURL != "" {
		s.redis, err = session.NewRedisDenylist(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
	} else {
		logger.Warn("REDIS_URL not set; logout will not revoke tokens")
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTES:
//
//	GET    /healthz                  → liveness (DB, Redis)
//	GET    /metrics                  → Prometheus
//	POST   /api/register             → create account      [rate limited]
//	POST   /api/login                → password sign-in    [rate limited]
//	POST   /auth/logout              → revoke + clear cookie
//	GET    /auth/google/login        → Google redirect     [if configured]
//	GET    /auth/google/callback     → Google sign-in      [if configured]
//	GET    /api/me                   → current user        [auth]
//	GET    /api/categories           → list                [auth]
//	POST   /api/categories           → add                 [auth]
//	PUT    /api/categories/{key}     → rename + cascade    [auth]
//	DELETE /api/categories/{key}     → delete + cascade    [auth]
//	GET    /api/items                → query               [auth]
//	POST   /api/items                → create              [auth]
//	GET    /api/items/{id}           → get                 [auth]
//	PUT    /api/items/{id}           → patch               [auth]
//	DELETE /api/items/{id}           → delete              [auth]
//
// Middleware order: RequestID, RealIP (so the rate limiter keys on the
// client), Logger, Metrics, Recoverer.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// A nil *RedisDenylist must not become a non-nil interface.
	var denylist auth.Denylist
	if s.redis != nil {
		denylist = s.redis
	}

	locks := service.NewLocks()
	categoryService := service.NewCategoryService(s.db, locks, s.metrics, s.logger)
	itemService := service.NewItemService(s.db, locks, s.metrics, s.logger)
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), denylist, s.metrics, s.logger)

	var google handler.GoogleAuthenticator
	if s.config.GoogleEnabled() {
		google = auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleCallbackURL)
	}

	authHandler := handler.NewAuthHandler(authService, google, tokens.TTL(), s.config.CookieSecure, s.logger)
	categoryHandler := handler.NewCategoryHandler(categoryService, s.logger)
	itemHandler := handler.NewItemHandler(itemService, s.logger)

	checks := map[string]handler.Pinger{"database": s.db}
	if s.redis != nil {
		checks["redis"] = s.redis
	}
	healthHandler := handler.NewHealthHandler(checks, s.logger)

	limiter := middleware.NewRateLimiter(s.config.AuthRateLimit, s.config.AuthRateBurst, s.metrics)
	requireAuth := auth.RequireAuth(tokens, denylist, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/logout", authHandler.HandleLogout)
		if google != nil {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)

			r.Get("/categories", categoryHandler.HandleList)
			r.Post("/categories", categoryHandler.HandleAdd)
			r.Put("/categories/{key}", categoryHandler.HandleRename)
			r.Delete("/categories/{key}", categoryHandler.HandleDelete)

			r.Get("/items", itemHandler.HandleList)
			r.Post("/items", itemHandler.HandleCreate)
			r.Get("/items/{id}", itemHandler.HandleGet)
			r.Put("/items/{id}", itemHandler.HandleUpdate)
			r.Delete("/items/{id}", itemHandler.HandleDelete)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the database and Redis.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("google", s.config.GoogleEnabled()),
			slog.Bool("redis", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
