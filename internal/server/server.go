// Package server is the composition root: it wires the database, services,
// handlers and middleware into a chi router and owns the HTTP lifecycle.
//
// The dependency graph is assembled in one place (New/setupRoutes) and
// flows by explicit injection — no package-level singletons. Each layer
// receives only what it needs: services get repository interfaces, handlers
// get services, nothing below this package knows the routes exist.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cognitivepath/api/internal/auth"
	"github.com/cognitivepath/api/internal/handler"
	"github.com/cognitivepath/api/internal/middleware"
	"github.com/cognitivepath/api/internal/model"
	"github.com/cognitivepath/api/internal/ratelimit"
	sqliteRepo "github.com/cognitivepath/api/internal/repository/sqlite"
	"github.com/cognitivepath/api/internal/service"
)

// APIVersion is the path prefix segment for the mounted routes.
const APIVersion = "v1"

// Config holds everything the server needs from the environment.
type Config struct {
	Port       int
	DBPath     string
	Tokens     auth.TokenConfig
	BcryptCost int // 0 means the auth package default
}

// Server owns the router and the database connection. The connection is
// closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, builds the dependency graph, and registers all
// routes. On any failure the database is closed before returning.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes wires middleware and the route table.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID / RealIP — RealIP must run before the rate limiters so
//     counters key on the real client, not a proxy.
//  2. Recoverer — panics become 500s instead of dropped connections.
//  3. Logger — one structured line per request.
//  4. General limiter — 100 req / 15 min / IP over all traffic.
//
// Request pipeline for a protected resource:
//
//	general limiter → RequireAuth → api limiter → RequireRole → handler
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.Tokens)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	patientService := service.NewPatientService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	patientHandler := handler.NewPatientHandler(patientService, s.logger)
	healthHandler := handler.NewHealthHandler(APIVersion)

	generalLimiter := ratelimit.New(ratelimit.General())
	authLimiter := ratelimit.New(ratelimit.Auth())
	apiLimiter := ratelimit.New(ratelimit.API())

	requireAuth := auth.RequireAuth(tokens, s.db, s.logger)
	optionalAuth := auth.OptionalAuth(tokens, s.db, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(generalLimiter.Handler)

	s.router.Route("/api/"+APIVersion, func(r chi.Router) {
		r.With(optionalAuth).Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			// Login and registration sit behind the strict window: 5 failed
			// attempts per 15 minutes per IP, successes refunded.
			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Handler)
				r.Post("/register", authHandler.HandleRegister)
				r.Post("/login", authHandler.HandleLogin)
			})

			r.Post("/refresh-token", authHandler.HandleRefreshToken)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/profile", authHandler.HandleGetProfile)
				r.Put("/profile", authHandler.HandleUpdateProfile)
				r.Put("/change-password", authHandler.HandleChangePassword)
			})
		})

		r.Route("/patients", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(apiLimiter.Handler)

			r.Get("/", patientHandler.HandleList)
			r.Get("/{id}", patientHandler.HandleGet)
			r.With(auth.RequireRole(model.RoleProvider, model.RoleAdmin)).
				Post("/", patientHandler.HandleCreate)
			r.Put("/{id}", patientHandler.HandleUpdate)
			r.With(auth.RequireRole(model.RoleAdmin)).
				Delete("/{id}", patientHandler.HandleDelete)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30
// seconds, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

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
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
