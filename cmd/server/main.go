// Package main is the entrypoint for the TriageFlow API server and its
// background consumers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lucasmonteiro/triageflow/internal/api"
	"github.com/lucasmonteiro/triageflow/internal/api/handler"
	mw "github.com/lucasmonteiro/triageflow/internal/api/middleware"
	"github.com/lucasmonteiro/triageflow/internal/classifier"
	"github.com/lucasmonteiro/triageflow/internal/config"
	"github.com/lucasmonteiro/triageflow/internal/queue"
	"github.com/lucasmonteiro/triageflow/internal/store"
	"github.com/lucasmonteiro/triageflow/internal/triage"
	"github.com/lucasmonteiro/triageflow/internal/worker"
)

const (
	shutdownTimeout   = 30 * time.Second
	requestsPerMinute = 60
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "classifier_provider", cfg.Classifier.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to the Redis queues
	redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Queue.MaxRetries)
	if err != nil {
		return fmt.Errorf("create redis queue: %w", err)
	}
	defer redisQueue.Close()

	if err := redisQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create the classifier
	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}
	slog.Info("classifier initialized", "provider", cls.Name())

	// 6. Create store and triage service
	pgStore := store.NewPostgresStore(pool)
	svc := triage.NewService(pgStore, redisQueue, cls, logger,
		cfg.Queue.MaxRetries, cfg.Classifier.Timeout)

	// 7. Start the consumer pool and cleanup scheduler
	consumerPool := worker.NewPool(redisQueue, svc, logger, cfg.Queue)
	cleanup := worker.NewCleanupScheduler(redisQueue, logger,
		cfg.Queue.CleanupInterval, cfg.Queue.ProcessingTimeout)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		consumerPool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisQueue, requestsPerMinute),

		HealthHandler: handler.NewHealthHandler(pgStore, redisQueue),

		CreatePatientHandler: handler.NewCreatePatientHandler(pgStore),
		GetPatientHandler:    handler.NewGetPatientHandler(pgStore),
		ListPatientsHandler:  handler.NewListPatientsHandler(pgStore),

		CreateTriageHandler:       handler.NewCreateTriageHandler(svc),
		GetTriageHandler:          handler.NewGetTriageHandler(svc),
		CancelTriageHandler:       handler.NewCancelTriageHandler(svc),
		ListPatientTriagesHandler: handler.NewListPatientTriagesHandler(svc),

		QueueStatsHandler: handler.NewQueueStatsHandler(svc),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout; consumers stop via ctx cancellation.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		wg.Wait()
		return fmt.Errorf("server shutdown: %w", err)
	}

	wg.Wait()
	slog.Info("server stopped gracefully")
	return nil
}
