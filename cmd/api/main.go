package main

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

	"github.com/joho/godotenv"

	"github.com/bryanwahyu/cu-orchestrator/internal/bootstrap"
	"github.com/bryanwahyu/cu-orchestrator/internal/config"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/httpserver"
	"github.com/bryanwahyu/cu-orchestrator/internal/logger"
	"github.com/bryanwahyu/cu-orchestrator/internal/middleware"
	"github.com/bryanwahyu/cu-orchestrator/internal/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}

	log := logger.NewWith(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// observability
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer shutdownMetrics(context.Background())

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TraceExporter, os.Stdout)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}

	// init minio
	store, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		return fmt.Errorf("minio init error: %w", err)
	}

	// journal (optional)
	repo, db, err := bootstrap.Journal(ctx, cfg)
	if err != nil {
		return err
	}
	checkers := map[string]middleware.HealthChecker{
		"storage": middleware.CheckerFunc(store.Ping),
	}
	if db != nil {
		defer db.Close()
		checkers["journal"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	client, err := bootstrap.ContentClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("content understanding client: %w", err)
	}
	svc := bootstrap.Service(cfg, client, store, repo, log)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	defer limiter.Stop()

	handler := httpserver.NewRouter(httpserver.Options{
		Service:        svc,
		Log:            log,
		APIKeys:        cfg.Server.APIKeys,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Limiter:        limiter,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metricsHandler,
		Checkers:       checkers,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// submit-and-poll requests stay open until the operation finishes
		WriteTimeout: cfg.ContentUnderstanding.LongTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr, "journal", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error("shutdown error", "error", err)
	}
	return nil
}
