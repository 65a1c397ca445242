// Command server runs the rewards HTTP service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	app "github.com/rafflehub/rewards/internal/app"
	"github.com/rafflehub/rewards/internal/app/httpapi"
	"github.com/rafflehub/rewards/internal/app/metrics"
	"github.com/rafflehub/rewards/internal/app/storage/postgres"
	"github.com/rafflehub/rewards/internal/cache"
	"github.com/rafflehub/rewards/internal/config"
	"github.com/rafflehub/rewards/internal/middleware"
	"github.com/rafflehub/rewards/internal/platform/migrations"
	"github.com/rafflehub/rewards/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, db, err := buildStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("configure stores: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	invalidator := buildInvalidator(cfg, log)
	defer invalidator.Close()

	application, err := app.New(stores, &app.Options{
		Ledger:      cfg.Ledger,
		Invalidator: invalidator,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("service shutdown incomplete")
		}
	}()

	adminAuth := middleware.NewAdminAuth(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPasswordHash,
		cfg.Auth.AdminTokenTTL(),
		log,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	limiter.StartCleanup(10 * time.Minute)

	handler := httpapi.NewHandler(application, adminAuth)
	handler = httpapi.WrapWithAuth(handler, cfg.Auth.APITokens, limiter)
	handler = middleware.CORS(nil)(handler)
	handler = metrics.InstrumentHandler(handler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// buildStores opens PostgreSQL when a DSN is configured and falls back to
// the in-memory store otherwise.
func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DB_DSN not set; using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{
		Users:   store,
		Tokens:  store,
		Legacy:  store,
		Raffles: store,
	}, db, nil
}

func buildInvalidator(cfg *config.Config, log *logger.Logger) cache.Invalidator {
	if cfg.Redis.Addr == "" {
		log.Warn("REDIS_ADDR not set; cache invalidation disabled")
		return cache.NewNoopInvalidator()
	}
	inv, err := cache.NewRedisInvalidator(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, log)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; cache invalidation disabled")
		return cache.NewNoopInvalidator()
	}
	return inv
}
