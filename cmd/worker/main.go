// Package main is the entrypoint for the chatvault ingestion worker. It
// consumes ingestion jobs and serves a read-only status API alongside.
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

	"github.com/kiranshivaraju/chatvault/internal/api"
	"github.com/kiranshivaraju/chatvault/internal/api/handler"
	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/config"
	"github.com/kiranshivaraju/chatvault/internal/ingest"
	"github.com/kiranshivaraju/chatvault/internal/media"
	"github.com/kiranshivaraju/chatvault/internal/parser"
	"github.com/kiranshivaraju/chatvault/internal/queue"
	"github.com/kiranshivaraju/chatvault/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"consumer", cfg.Worker.Consumer,
		"concurrency", cfg.Worker.Concurrency)

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
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Redis: progress channel and job queue share one client
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobs := queue.New(redisCache.Client(), queue.Options{
		Consumer:    cfg.Worker.Consumer,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
	})
	recovered, err := jobs.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight jobs: %w", err)
	}
	if recovered > 0 {
		slog.Warn("requeued jobs left in flight by a previous run", "count", recovered)
	}

	// 5. Pipeline components
	pgStore := store.NewPostgresStore(pool)
	library := media.NewLibrary(cfg.Storage.MediaDir, media.ThumbnailOptions{
		Width:   cfg.Thumbnail.Width,
		Height:  cfg.Thumbnail.Height,
		Quality: cfg.Thumbnail.Quality,
	}, logger)
	transcripts := parser.New(parser.Options{
		SelfNames: cfg.Transcript.SelfNames,
		Location:  cfg.Transcript.Location,
	})

	worker := ingest.New(jobs, pgStore, redisCache, library, transcripts, ingest.Options{
		UploadDir:   cfg.Storage.UploadDir,
		Concurrency: cfg.Worker.Concurrency,
		PollTimeout: cfg.Worker.PollTimeout,
	}, logger.With("component", "ingest"))

	// 6. Build router with dependencies
	router := api.NewRouter(dependencies(pgStore, redisCache, jobs))

	// 7. Start HTTP server and consumers
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

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.Run(workerCtx)
	}()

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	case err := <-workerDone:
		workerDone = nil
		if err != nil {
			runErr = fmt.Errorf("worker: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, finishing jobs in flight...")
	}

	// Graceful shutdown with timeout
	stopWorker()
	if workerDone != nil {
		if err := <-workerDone; err != nil && runErr == nil {
			runErr = fmt.Errorf("worker: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// dependencies wires the read-only status handlers.
func dependencies(st store.Store, c cache.Cache, q handler.QueueInspector) api.Dependencies {
	chats := handler.NewChatHandler(st, c)
	return api.Dependencies{
		HealthHandler:       handler.NewHealthHandler(st, c),
		GetChatHandler:      chats.Get,
		ChatProgressHandler: chats.Progress,
		ChatMessagesHandler: chats.Messages,
		QueueHandler:        handler.NewQueueHandler(q),
	}
}
