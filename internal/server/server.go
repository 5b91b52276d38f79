// Package server is the composition root: it wires config, storage,
// services, handlers and middleware into one chi router and runs the HTTP
// server with graceful shutdown.
//
// DEPENDENCY FLOW:
//
//	main: config.Load → sqlstore.New → nutrition.New → server.New
//	server.New: metrics → services (repositories, nutrition source) → handlers → routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get small service interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/insho/insho-api/internal/auth"
	"github.com/insho/insho-api/internal/config"
	"github.com/insho/insho-api/internal/handler"
	"github.com/insho/insho-api/internal/metrics"
	"github.com/insho/insho-api/internal/middleware"
	"github.com/insho/insho-api/internal/nutrition"
	"github.com/insho/insho-api/internal/repository"
	"github.com/insho/insho-api/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Store is everything the server needs from the database.
// *sqlstore.DB implements it.
type Store interface {
	repository.UserRepository
	repository.FoodRepository
	repository.Pinger
	Close() error
}

// Server owns the router and the database; the database is closed when
// Start returns.
type Server struct {
	router  *chi.Mux
	cfg     *config.Config
	logger  *slog.Logger
	store   Store
	metrics *metrics.Metrics
}

// New wires every dependency. source is the raw nutrition catalog; New
// instruments it with the server metrics.
func New(cfg *config.Config, store Store, source nutrition.Source, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(logger),
	}
	s.setupRoutes(tokens, nutrition.Instrument(source, s.metrics))
	return s, nil
}

// Handler returns the root handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts every route.
//
// ROUTES (prefix /api/v1):
//
//	POST   /auth/register          public
//	POST   /auth/login             public
//	POST   /auth/logout            public
//	GET    /auth/me                JWT
//	GET    /auth/github/login      public, only when GitHub is configured
//	GET    /auth/github/callback   public, only when GitHub is configured
//	GET    /users/me               JWT
//	PATCH  /users/me               JWT
//	DELETE /users/me               JWT
//	GET    /dashboard              JWT
//	POST   /food/lookup            public, JWT optional
//	POST   /food/consume           JWT
//	GET    /food/totals            JWT
//	GET    /food/history           JWT
//	GET    /health                 public
//	GET    /metrics (root)         public, when METRICS_ENABLED
//
// MIDDLEWARE ORDER:
// RequestID and RealIP first so the logger sees both; Logger wraps
// Recoverer so recovered panics are still logged as 500s.
func (s *Server) setupRoutes(tokens *auth.TokenService, source nutrition.Source) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	passwords := auth.NewPasswordService()
	authSvc := service.NewAuthService(s.store, tokens, passwords, s.logger)
	userSvc := service.NewUserService(s.store, s.store, s.logger)
	foodSvc := service.NewFoodService(s.store, source, s.metrics, s.logger)
	healthSvc := service.NewHealthService(s.store, s.cfg.Env, s.logger)

	var github handler.GitHubExchanger
	if s.cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.cfg.GitHubClientID, s.cfg.GitHubClientSecret, s.cfg.GitHubCallbackURL)
	}

	authH := handler.NewAuthHandler(authSvc, github, !s.cfg.IsDevelopment(), s.logger)
	userH := handler.NewUserHandler(userSvc, s.logger)
	foodH := handler.NewFoodHandler(foodSvc, s.logger)
	healthH := handler.NewHealthHandler(healthSvc)

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthH.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.HandleRegister)
			r.Post("/login", authH.HandleLogin)
			r.Post("/logout", authH.HandleLogout)
			r.With(requireAuth).Get("/me", authH.HandleMe)
			if github != nil {
				r.Get("/github/login", authH.HandleGitHubLogin)
				r.Get("/github/callback", authH.HandleGitHubCallback)
			}
		})

		r.Route("/food", func(r chi.Router) {
			r.With(auth.OptionalAuth(tokens)).Post("/lookup", foodH.HandleLookup)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/consume", foodH.HandleConsume)
				r.Get("/totals", foodH.HandleTotals)
				r.Get("/history", foodH.HandleHistory)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/users/me", userH.HandleGetMe)
			r.Patch("/users/me", userH.HandleUpdateMe)
			r.Delete("/users/me", userH.HandleDeleteMe)
			r.Get("/dashboard", userH.HandleDashboard)
		})
	})

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30s and closes the database.
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("env", s.cfg.Env),
			slog.String("nutrition_source", s.cfg.NutritionSource),
			slog.Bool("github_login", s.cfg.GitHubEnabled()),
			slog.Bool("metrics", s.cfg.MetricsEnabled),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
