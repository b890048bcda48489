package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm/internal/domain/audit"
	"crm/internal/domain/auth"
	"crm/internal/domain/core"
	"crm/internal/domain/notifications"
	"crm/internal/domain/reports"
	"crm/internal/domain/targets"
	"crm/internal/platform/cache"
	"crm/internal/platform/config"
	"crm/internal/platform/db"
	"crm/internal/platform/email"
	"crm/internal/platform/jobs"
	"crm/internal/platform/metrics"
	adminhandler "crm/internal/transport/http/handlers/admin"
	audithandler "crm/internal/transport/http/handlers/audit"
	authhandler "crm/internal/transport/http/handlers/auth"
	corehandler "crm/internal/transport/http/handlers/core"
	notificationshandler "crm/internal/transport/http/handlers/notifications"
	reportshandler "crm/internal/transport/http/handlers/reports"
	targetshandler "crm/internal/transport/http/handlers/targets"
	"crm/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	DB     *pgxpool.Pool
	Router http.Handler
	Jobs   *jobs.Service
}

// New connects, migrates, seeds and wires the full router. Callers own the
// returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, migrationsDir()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	coreSvc := core.NewService(core.NewStore(pool))
	authSvc := auth.NewService(auth.NewStore(pool))
	auditSvc := audit.New(pool)
	mailer := email.New(cfg)
	notifySvc := notifications.New(notifications.NewStore(pool), mailer)

	targetCache := cache.NewTTL(cfg.TargetCacheTTL)
	targetSvc := targets.NewService(targets.NewStore(pool), notifySvc, targetCache)

	reportSvc := reports.NewService(reports.NewStore(pool), targetSvc, coreSvc)

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	jobSvc := jobs.New(pool, cfg, targetSvc)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	if collector != nil {
		router.Use(middleware.Metrics(collector))
	}
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(authSvc, cfg.JWTSecret, auditSvc, mailer, cfg.EmailFrom, cfg.AppBaseURL)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Post("/auth/refresh", authHandler.HandleRefresh)
		r.Post("/auth/request-reset", authHandler.HandleRequestReset)
		r.Post("/auth/reset", authHandler.HandleResetPassword)

		coreHandler := corehandler.NewHandler(coreSvc, auditSvc)
		coreHandler.RegisterRoutes(r)

		targetsHandler := targetshandler.NewHandler(targetSvc, coreSvc, notifySvc, auditSvc, collector, targetCache, middleware.NewIdempotencyStore(pool), cfg.ERPWebhookKey)
		targetsHandler.RegisterRoutes(r)

		reportsHandler := reportshandler.NewHandler(reportSvc, coreSvc)
		reportsHandler.RegisterRoutes(r)

		notificationsHandler := notificationshandler.NewHandler(notifySvc)
		notificationsHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(auditSvc, coreSvc)
		auditHandler.RegisterRoutes(r)

		adminHandler := adminhandler.NewHandler(jobSvc, targetSvc, coreSvc, auditSvc, collector)
		adminHandler.RegisterRoutes(r)
	})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: jobSvc}, nil
}

func (a *App) Close() {
	a.DB.Close()
}

// migrationsDir walks up from the working directory so migrations resolve
// both for the server binary and for tests run from package directories.
func migrationsDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "migrations"
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "migrations"
		}
		dir = parent
	}
}

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()
	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	app.Jobs.Start(ctx)

	log.Printf("CRM server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
