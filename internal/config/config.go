package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the chatvault worker and CLI.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Worker     WorkerConfig
	Thumbnail  ThumbnailConfig
	Transcript TranscriptConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// StorageConfig locates the two filesystem roots: staged uploads with their
// extraction directories, and per-chat media.
type StorageConfig struct {
	UploadDir string
	MediaDir  string
}

type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	PollTimeout time.Duration
	Consumer    string
}

type ThumbnailConfig struct {
	Width   int
	Height  int
	Quality int
}

type TranscriptConfig struct {
	SelfNames []string
	Location  *time.Location
}

type LogConfig struct {
	Level string
	File  string
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory, if present, seeds variables that are not already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(envString("TRANSCRIPT_LOCATION", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TRANSCRIPT_LOCATION: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CHATVAULT_PORT", 8081),
			Env:  envString("CHATVAULT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			UploadDir: envString("UPLOAD_DIR", "./uploads"),
			MediaDir:  envString("MEDIA_DIR", "./media"),
		},
		Worker: WorkerConfig{
			Concurrency: envInt("WORKER_CONCURRENCY", 1),
			MaxAttempts: envInt("WORKER_MAX_ATTEMPTS", 3),
			BackoffBase: envDuration("WORKER_BACKOFF_BASE", 5*time.Second),
			PollTimeout: envDuration("WORKER_POLL_TIMEOUT", 5*time.Second),
			Consumer:    envString("WORKER_CONSUMER", hostname()),
		},
		Thumbnail: ThumbnailConfig{
			Width:   envInt("THUMB_WIDTH", 300),
			Height:  envInt("THUMB_HEIGHT", 300),
			Quality: envInt("THUMB_QUALITY", 80),
		},
		Transcript: TranscriptConfig{
			SelfNames: envList("SELF_SENDER_NAMES", []string{"you"}),
			Location:  loc,
		},
		Log: LogConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", "info")),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.BackoffBase <= 0 {
		return fmt.Errorf("WORKER_BACKOFF_BASE must be positive, got %s", c.Worker.BackoffBase)
	}

	if c.Thumbnail.Width <= 0 || c.Thumbnail.Height <= 0 {
		return fmt.Errorf("THUMB_WIDTH and THUMB_HEIGHT must be positive, got %dx%d", c.Thumbnail.Width, c.Thumbnail.Height)
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		return fmt.Errorf("THUMB_QUALITY must be between 1 and 100, got %d", c.Thumbnail.Quality)
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker"
	}
	return h
}
