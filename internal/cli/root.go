// Package cli provides the chatctl operator command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/chatvault/internal/cache"
	"github.com/kiranshivaraju/chatvault/internal/config"
	"github.com/kiranshivaraju/chatvault/internal/queue"
	"github.com/kiranshivaraju/chatvault/internal/store"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	// Global flags
	verbose bool

	// Backends, opened by commands that need them
	cfg        *config.Config
	pool       *pgxpool.Pool
	redisCache *cache.RedisCache
	chatStore  store.Store
	jobQueue   *queue.RedisQueue
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Operate the chatvault ingestion pipeline",
	Long: `chatctl submits chat export archives for ingestion and inspects the
pipeline: chat status, progress and the job queue.

Configuration is read from the environment (and a .env file), the same
variables the worker uses.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queueCmd)
}

// Execute runs the root command.
func Execute() error {
	defer closeBackends()
	return rootCmd.Execute()
}

// openBackends loads config and connects to the database and Redis.
func openBackends(ctx context.Context) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err = store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	chatStore = store.NewPostgresStore(pool)

	redisCache, err = cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	jobQueue = queue.New(redisCache.Client(), queue.Options{
		MaxAttempts: cfg.Worker.MaxAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
	})
	return nil
}

func closeBackends() {
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close redis: %v\n", err)
		}
		redisCache = nil
	}
	if pool != nil {
		pool.Close()
		pool = nil
	}
}
