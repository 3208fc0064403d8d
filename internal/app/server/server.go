package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"wps/internal/domain/audit"
	"wps/internal/domain/auth"
	"wps/internal/domain/wps"
	"wps/internal/platform/config"
	"wps/internal/platform/db"
	"wps/internal/platform/jobs"
	"wps/internal/platform/metrics"
	audithandler "wps/internal/transport/http/handlers/audit"
	wpshandler "wps/internal/transport/http/handlers/wps"
	"wps/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Metrics *metrics.Collector
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if err := db.Seed(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}

	m := metrics.New()
	return &App{
		Config:  cfg,
		DB:      pool,
		Router:  NewRouter(cfg, pool, m, loc),
		Metrics: m,
	}, nil
}

// NewRouter wires the HTTP surface. pool may be nil in tests; readiness then
// reports not ready.
func NewRouter(cfg config.Config, pool *db.Pool, m *metrics.Collector, loc *time.Location) http.Handler {
	permStore := auth.NewStore(pool)
	auditService := audit.New(pool)
	jobService := jobs.New(pool, m)
	wpsService := wps.NewService(wps.NewStore(pool), jobService, loc)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(m))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", m.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		wpsHandler := wpshandler.NewHandler(wpsService, auditService, jobService, m, permStore, middleware.NewIdempotencyStore(pool))
		wpsHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(auditService, permStore)
		auditHandler.RegisterRoutes(r)
	})

	return router
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func Run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      app.Router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("wps server listening", "addr", cfg.Addr, "env", cfg.Environment, "timezone", cfg.Timezone)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("wps server shutting down")
	return srv.Shutdown(shutdownCtx)
}
